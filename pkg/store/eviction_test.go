package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/appfactory-ai/assetgen/pkg/keys"
	"github.com/appfactory-ai/assetgen/pkg/models"
)

func sizedEntry(i int, accessCount int64, accessed time.Time) (*models.Entry, []byte) {
	prompt := fmt.Sprintf("asset prompt number %d", i)
	normalized := keys.NormalizePrompt(prompt)
	e := &models.Entry{
		Key:              keys.Derive("icon", prompt, nil),
		Category:         "icon",
		PromptRaw:        prompt,
		PromptNormalized: normalized,
		KeywordSet:       keys.Tokenize(normalized),
		CreatedAt:        accessed,
		LastAccessedAt:   accessed,
		AccessCount:      accessCount,
		UnitCost:         0.039,
	}
	return e, make([]byte, 100)
}

func TestEvictionRemovesExpired(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 1<<20, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	old, blob := sizedEntry(1, 5, time.Now().Add(-2*time.Hour))
	if err := s.Insert(old, blob); err != nil {
		t.Fatal(err)
	}
	fresh, blob2 := sizedEntry(2, 1, time.Now())
	if err := s.Insert(fresh, blob2); err != nil {
		t.Fatal(err)
	}

	report := s.RunEviction(1.0 / 3.0)
	if report.Expired != 1 {
		t.Errorf("expired removals = %d, want 1", report.Expired)
	}
	if s.LookupExact(fresh.Key) == nil {
		t.Error("fresh entry evicted")
	}
	if s.LookupExact(old.Key) != nil {
		t.Error("expired entry survived eviction")
	}
}

func TestEvictionDiscretionaryPhase(t *testing.T) {
	// maxBytes fits 4 blobs of 100 bytes; usage above 50% triggers phase 2.
	s := newTestStore(t, 400)
	base := time.Now()

	// access counts 1..5; oldest access first. The lowest third (one
	// entry after floor, plus pressure) must be the least-used ones.
	var entries []*models.Entry
	for i := 1; i <= 5; i++ {
		e, blob := sizedEntry(i, int64(i), base.Add(time.Duration(i)*time.Minute))
		if err := s.Insert(e, blob); err != nil {
			t.Fatal(err)
		}
		entries = append(entries, e)
	}

	if !s.NeedsCleanup(0.8) {
		t.Fatal("store should need cleanup at 500/400 bytes")
	}
	report := s.RunEviction(1.0 / 3.0)
	if report.LowUsage != 1 {
		t.Errorf("low-usage removals = %d, want 1 (floor of 5/3)", report.LowUsage)
	}
	// The entry with the lowest access count goes first.
	if s.LookupExact(entries[0].Key) != nil {
		t.Error("least-used entry survived")
	}
	for _, e := range entries[1:] {
		if s.LookupExact(e.Key) == nil {
			t.Errorf("entry %s evicted out of order", e.Key)
		}
	}
}

func TestEvictionTieBreaksOnOldestAccess(t *testing.T) {
	s := newTestStore(t, 300)
	base := time.Now()

	oldest, blob := sizedEntry(1, 1, base.Add(-time.Hour))
	newer, blob2 := sizedEntry(2, 1, base)
	popular, blob3 := sizedEntry(3, 10, base.Add(-2*time.Hour))
	for _, pair := range []struct {
		e *models.Entry
		b []byte
	}{{oldest, blob}, {newer, blob2}, {popular, blob3}} {
		if err := s.Insert(pair.e, pair.b); err != nil {
			t.Fatal(err)
		}
	}

	s.RunEviction(1.0 / 3.0)

	if s.LookupExact(oldest.Key) != nil {
		t.Error("oldest least-used entry should have been evicted")
	}
	if s.LookupExact(newer.Key) == nil || s.LookupExact(popular.Key) == nil {
		t.Error("wrong entries evicted")
	}
}

func TestEvictionSkipsDiscretionaryBelowFloor(t *testing.T) {
	// One 100-byte blob against a large limit: phase 2 must not run.
	s := newTestStore(t, 10_000)
	e, blob := sizedEntry(1, 1, time.Now())
	if err := s.Insert(e, blob); err != nil {
		t.Fatal(err)
	}

	report := s.RunEviction(1.0 / 3.0)
	if report.Removed() != 0 {
		t.Errorf("eviction removed %d entries with no pressure", report.Removed())
	}
	if s.LookupExact(e.Key) == nil {
		t.Error("entry evicted without pressure")
	}
}

func TestEvictionUpdatesLastCleanup(t *testing.T) {
	s := newTestStore(t, 1<<20)
	before := s.LastCleanup()
	time.Sleep(5 * time.Millisecond)
	s.RunEviction(1.0 / 3.0)
	if !s.LastCleanup().After(before) {
		t.Error("last_cleanup did not advance")
	}
}

func TestEvictionConvergesUnderPressure(t *testing.T) {
	s := newTestStore(t, 400)
	for i := 0; i < 8; i++ {
		e, blob := sizedEntry(i, int64(i), time.Now())
		if err := s.Insert(e, blob); err != nil {
			t.Fatal(err)
		}
		if s.NeedsCleanup(0.8) {
			s.RunEviction(1.0 / 3.0)
		}
	}
	// Successive passes keep the store within its limit.
	for s.TotalBytes() > 400 {
		before := s.Len()
		s.RunEviction(1.0 / 3.0)
		if s.Len() == before {
			t.Fatal("eviction made no progress")
		}
	}
	if s.TotalBytes() > 400 {
		t.Errorf("total_bytes = %d after convergence, want <= 400", s.TotalBytes())
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t, 1<<20)
	for i := 0; i < 3; i++ {
		e, blob := sizedEntry(i, 1, time.Now())
		if err := s.Insert(e, blob); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 || s.TotalBytes() != 0 {
		t.Errorf("store not empty after clear: len=%d bytes=%d", s.Len(), s.TotalBytes())
	}
}
