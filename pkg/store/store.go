// Package store persists generated assets as one blob file per entry plus
// a single JSON metadata document, and applies the usage-aware eviction
// policy that keeps the cache within its size and age limits.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/appfactory-ai/assetgen/pkg/keys"
	"github.com/appfactory-ai/assetgen/pkg/models"
	"github.com/appfactory-ai/assetgen/pkg/similarity"
)

const (
	metadataFile = "cache_metadata.json"
	statsFile    = "cache_stats.json"
	ledgerFile   = "budget_state.json"

	// DefaultExt is the blob file extension for PNG artifacts.
	DefaultExt = ".png"
)

// ErrStorage wraps blob or metadata write failures. An insert that returns
// ErrStorage leaves no visible entry behind.
var ErrStorage = errors.New("storage error")

// Store maps cache keys to entries and owns the artifact blobs under a
// single root directory. A RWMutex serializes metadata writes; lookups
// take the read lock.
type Store struct {
	mu       sync.RWMutex
	root     string
	maxBytes int64
	maxAge   time.Duration
	logger   *zap.Logger

	meta models.CacheMetadata

	// orphans holds keys whose blob went missing; strays holds blob files
	// with no metadata. Both are cleared by the next eviction pass.
	orphans map[string]struct{}
	strays  map[string]struct{}

	// removeFailed holds keys whose removal failed; retried next pass.
	removeFailed map[string]struct{}
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New opens the store rooted at dir, loading the metadata document if it
// exists and scanning for orphans.
func New(dir string, maxBytes int64, maxAge time.Duration, opts ...Option) (*Store, error) {
	s := &Store{
		root:         dir,
		maxBytes:     maxBytes,
		maxAge:       maxAge,
		logger:       zap.NewNop(),
		orphans:      make(map[string]struct{}),
		strays:       make(map[string]struct{}),
		removeFailed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	if err := s.loadMetadata(); err != nil {
		return nil, err
	}
	s.scanOrphans()

	s.logger.Info("asset store opened",
		zap.String("root", dir),
		zap.Int("entries", len(s.meta.Assets)),
		zap.Int("orphans", len(s.orphans)))
	return s, nil
}

func (s *Store) loadMetadata() error {
	path := filepath.Join(s.root, metadataFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		now := time.Now()
		s.meta = models.CacheMetadata{
			Assets:      make(map[string]*models.Entry),
			Created:     now,
			LastCleanup: now,
			LastUpdated: now,
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &s.meta); err != nil {
		return fmt.Errorf("parse metadata: %w", err)
	}
	if s.meta.Assets == nil {
		s.meta.Assets = make(map[string]*models.Entry)
	}
	return nil
}

// scanOrphans flags entries without blobs and blob files without entries.
func (s *Store) scanOrphans() {
	referenced := make(map[string]struct{}, len(s.meta.Assets))
	for key, e := range s.meta.Assets {
		referenced[e.BlobRef] = struct{}{}
		if _, err := os.Stat(filepath.Join(s.root, e.BlobRef)); err != nil {
			s.orphans[key] = struct{}{}
		}
	}

	files, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Warn("orphan scan failed", zap.Error(err))
		return
	}
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, DefaultExt) {
			continue
		}
		if _, ok := referenced[name]; !ok {
			s.strays[name] = struct{}{}
		}
	}
}

// LookupExact returns a copy of the entry for key, or nil if it is absent,
// expired or orphaned. An entry whose blob is found missing here is
// flagged for the next eviction pass.
func (s *Store) LookupExact(key string) *models.Entry {
	s.mu.RLock()
	e, ok := s.meta.Assets[key]
	if !ok || e.Expired(time.Now(), s.maxAge) {
		s.mu.RUnlock()
		return nil
	}
	if _, orphaned := s.orphans[key]; orphaned {
		s.mu.RUnlock()
		return nil
	}
	copied := *e
	blobPath := filepath.Join(s.root, e.BlobRef)
	s.mu.RUnlock()

	if _, err := os.Stat(blobPath); err != nil {
		s.flagOrphan(key)
		return nil
	}
	return &copied
}

// LookupSimilar returns the best entry in category whose normalized-prompt
// similarity is at least threshold, or nil. Expired and orphaned entries
// are never considered.
func (s *Store) LookupSimilar(category, normalizedPrompt string, threshold float64) *models.Entry {
	queryTokens := keys.Tokenize(normalizedPrompt)
	now := time.Now()

	s.mu.RLock()
	candidates := make([]*models.Entry, 0, len(s.meta.Assets))
	for key, e := range s.meta.Assets {
		if e.Category != category || e.Expired(now, s.maxAge) {
			continue
		}
		if _, orphaned := s.orphans[key]; orphaned {
			continue
		}
		copied := *e
		candidates = append(candidates, &copied)
	}
	s.mu.RUnlock()

	match := similarity.Best(queryTokens, candidates, threshold)
	if match == nil {
		return nil
	}
	if _, err := os.Stat(filepath.Join(s.root, match.Entry.BlobRef)); err != nil {
		s.flagOrphan(match.Entry.Key)
		return nil
	}

	s.logger.Debug("similar cache match",
		zap.String("key", match.Entry.Key),
		zap.Float64("score", match.Score))
	copied := *match.Entry
	return &copied
}

// ReadBlob returns the artifact bytes for key. A missing blob flags the
// entry as orphaned and returns ErrStorage.
func (s *Store) ReadBlob(key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.meta.Assets[key]
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: no entry for key %s", ErrStorage, key)
	}
	blobPath := filepath.Join(s.root, e.BlobRef)
	s.mu.RUnlock()

	data, err := os.ReadFile(blobPath)
	if err != nil {
		s.flagOrphan(key)
		return nil, fmt.Errorf("%w: read blob %s: %v", ErrStorage, key, err)
	}
	return data, nil
}

// Insert writes the blob and then the metadata document; the entry becomes
// visible only after both succeed. On failure no entry is visible and
// ErrStorage is returned.
func (s *Store) Insert(entry *models.Entry, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobRef := entry.Key + DefaultExt
	blobPath := filepath.Join(s.root, blobRef)
	if err := atomicWrite(blobPath, blob); err != nil {
		return fmt.Errorf("%w: write blob: %v", ErrStorage, err)
	}

	stored := *entry
	stored.BlobRef = blobRef
	stored.ByteSize = int64(len(blob))

	prev, hadPrev := s.meta.Assets[entry.Key]
	s.meta.Assets[entry.Key] = &stored
	if err := s.persistMetadataLocked(); err != nil {
		// Roll back to the pre-insert view; the blob file is best-effort
		// cleaned up and swept as a stray otherwise.
		if hadPrev {
			s.meta.Assets[entry.Key] = prev
		} else {
			delete(s.meta.Assets, entry.Key)
			if rmErr := os.Remove(blobPath); rmErr != nil {
				s.strays[blobRef] = struct{}{}
			}
		}
		return fmt.Errorf("%w: write metadata: %v", ErrStorage, err)
	}

	delete(s.orphans, entry.Key)
	delete(s.strays, blobRef)
	return nil
}

// Touch records a hit: increments the access count, refreshes the access
// time and credits costSavedDelta to the entry.
func (s *Store) Touch(key string, costSavedDelta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.meta.Assets[key]
	if !ok {
		return fmt.Errorf("%w: no entry for key %s", ErrStorage, key)
	}
	e.AccessCount++
	e.LastAccessedAt = time.Now()
	e.CostSaved += costSavedDelta
	return s.persistMetadataLocked()
}

// Remove deletes the blob and then the metadata record. A missing blob is
// tolerated.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.removeLocked(key); err != nil {
		return err
	}
	return s.persistMetadataLocked()
}

func (s *Store) removeLocked(key string) error {
	e, ok := s.meta.Assets[key]
	if ok {
		blobPath := filepath.Join(s.root, e.BlobRef)
		if err := os.Remove(blobPath); err != nil && !os.IsNotExist(err) {
			s.removeFailed[key] = struct{}{}
			return fmt.Errorf("%w: remove blob %s: %v", ErrStorage, key, err)
		}
	}
	delete(s.meta.Assets, key)
	delete(s.orphans, key)
	delete(s.removeFailed, key)
	return nil
}

// TotalBytes returns the sum of all entry byte sizes.
func (s *Store) TotalBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalBytesLocked()
}

func (s *Store) totalBytesLocked() int64 {
	var total int64
	for _, e := range s.meta.Assets {
		total += e.ByteSize
	}
	return total
}

// Entries returns a snapshot copy of all entries.
func (s *Store) Entries() []*models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Entry, 0, len(s.meta.Assets))
	for _, e := range s.meta.Assets {
		copied := *e
		out = append(out, &copied)
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meta.Assets)
}

// LastCleanup returns when the last eviction pass completed.
func (s *Store) LastCleanup() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.LastCleanup
}

// Health counts expired entries and missing blob files, for reporting.
func (s *Store) Health() (expired, missing int) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, e := range s.meta.Assets {
		if e.Expired(now, s.maxAge) {
			expired++
		}
		if _, orphaned := s.orphans[key]; orphaned {
			missing++
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.BlobRef)); err != nil {
			missing++
		}
	}
	return expired, missing
}

func (s *Store) flagOrphan(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meta.Assets[key]; ok {
		s.orphans[key] = struct{}{}
		s.logger.Warn("orphaned cache entry flagged", zap.String("key", key))
	}
}

// persistMetadataLocked writes the metadata document durably.
func (s *Store) persistMetadataLocked() error {
	s.meta.LastUpdated = time.Now()
	data, err := json.MarshalIndent(&s.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := atomicWrite(filepath.Join(s.root, metadataFile), data); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// StatsPath returns the path of the best-effort stats document.
func (s *Store) StatsPath() string {
	return filepath.Join(s.root, statsFile)
}

// LedgerPath returns the conventional ledger location beside the metadata.
func (s *Store) LedgerPath() string {
	return filepath.Join(s.root, ledgerFile)
}

// removeFile deletes a file, tolerating one that is already gone.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// atomicWrite writes data durably via temp file, fsync and rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
