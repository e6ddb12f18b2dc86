package store

import (
	"math"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/appfactory-ai/assetgen/pkg/models"
)

// discretionaryFloor is the fraction of maxBytes below which phase two of
// an eviction pass is skipped.
const discretionaryFloor = 0.5

// EvictionReport summarizes one eviction pass.
type EvictionReport struct {
	Expired    int   `json:"expired"`
	Orphaned   int   `json:"orphaned"`
	LowUsage   int   `json:"low_usage"`
	Failed     int   `json:"failed"`
	FreedBytes int64 `json:"freed_bytes"`
}

// Removed returns the total number of entries removed.
func (r EvictionReport) Removed() int {
	return r.Expired + r.Orphaned + r.LowUsage
}

// NeedsCleanup reports whether total bytes have reached the cleanup
// threshold fraction of the size limit.
func (s *Store) NeedsCleanup(threshold float64) bool {
	return float64(s.TotalBytes()) >= threshold*float64(s.maxBytes)
}

// RunEviction performs one two-phase eviction pass, holding the metadata
// write lock for the duration. Phase one removes every expired and
// orphaned entry plus any removal that failed in an earlier pass. Phase
// two, entered only while usage still exceeds half the size limit,
// removes the lowest fraction of surviving entries ordered by
// (access_count asc, last_accessed_at asc). Individual removal failures
// are flagged and retried on the next pass.
func (s *Store) RunEviction(fraction float64) EvictionReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var report EvictionReport

	// Phase 1: mandatory removals.
	for key := range s.removeFailed {
		s.orphans[key] = struct{}{}
	}
	for key, e := range s.meta.Assets {
		_, orphaned := s.orphans[key]
		if !orphaned && !e.Expired(now, s.maxAge) {
			continue
		}
		size := e.ByteSize
		if err := s.removeLocked(key); err != nil {
			report.Failed++
			s.logger.Warn("eviction removal failed", zap.String("key", key), zap.Error(err))
			continue
		}
		report.FreedBytes += size
		if orphaned {
			report.Orphaned++
		} else {
			report.Expired++
		}
	}

	// Stray blob files have no entry; deleting them frees disk but not
	// accounted bytes.
	for name := range s.strays {
		if err := removeFile(filepath.Join(s.root, name)); err != nil {
			report.Failed++
			continue
		}
		delete(s.strays, name)
		report.Orphaned++
	}

	// Phase 2: discretionary removals under continued pressure.
	if float64(s.totalBytesLocked()) > discretionaryFloor*float64(s.maxBytes) {
		survivors := make([]*models.Entry, 0, len(s.meta.Assets))
		for _, e := range s.meta.Assets {
			survivors = append(survivors, e)
		}
		sort.Slice(survivors, func(i, j int) bool {
			if survivors[i].AccessCount != survivors[j].AccessCount {
				return survivors[i].AccessCount < survivors[j].AccessCount
			}
			return survivors[i].LastAccessedAt.Before(survivors[j].LastAccessedAt)
		})

		count := int(math.Floor(float64(len(survivors)) * fraction))
		if count < 1 && len(survivors) > 0 {
			count = 1
		}
		for _, e := range survivors[:count] {
			size := e.ByteSize
			if err := s.removeLocked(e.Key); err != nil {
				report.Failed++
				s.logger.Warn("eviction removal failed", zap.String("key", e.Key), zap.Error(err))
				continue
			}
			report.FreedBytes += size
			report.LowUsage++
		}
	}

	// last_cleanup advances on every pass, success or partial.
	s.meta.LastCleanup = now
	if err := s.persistMetadataLocked(); err != nil {
		s.logger.Error("persist metadata after eviction", zap.Error(err))
	}

	s.logger.Info("eviction pass complete",
		zap.Int("expired", report.Expired),
		zap.Int("orphaned", report.Orphaned),
		zap.Int("low_usage", report.LowUsage),
		zap.Int("failed", report.Failed),
		zap.Int64("freed_bytes", report.FreedBytes))
	return report
}

// Clear removes every entry and blob.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.meta.Assets {
		if err := s.removeLocked(key); err != nil {
			return err
		}
	}
	return s.persistMetadataLocked()
}
