package history

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/appfactory-ai/assetgen/pkg/models"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history_test.db")
	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestRecordAndRecent(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := models.GenerationRecord{
			CacheKey:  "icon_abc",
			Category:  "icon",
			Prompt:    "fitness icon",
			Outcome:   "generated",
			Method:    "provider",
			Cost:      0.039,
			LatencyMs: 1200,
			CreatedAt: time.Date(2025, 3, 1, 10, i, 0, 0, time.UTC),
		}
		if err := tr.Record(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	records, err := tr.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID == "" {
		t.Error("record ID not assigned")
	}
	if !records[0].CreatedAt.After(records[1].CreatedAt) {
		t.Error("records not ordered newest first")
	}
}

func TestMonthlySummary(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	seed := []struct {
		category string
		cost     float64
		at       time.Time
	}{
		{"icon", 0.039, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"icon", 0.039, time.Date(2025, 3, 6, 0, 0, 0, 0, time.UTC)},
		{"screenshot", 0.080, time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)},
		{"icon", 0.039, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)}, // next month
	}
	for _, s := range seed {
		err := tr.Record(ctx, models.GenerationRecord{
			CacheKey: "k", Category: s.category, Prompt: "p",
			Outcome: "generated", Method: "provider", Cost: s.cost, CreatedAt: s.at,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	summaries, err := tr.MonthlySummary(ctx, "2025-03")
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	// Ordered by cost descending: screenshot first.
	if summaries[0].Category != "screenshot" || summaries[0].Generations != 1 {
		t.Errorf("unexpected first summary: %+v", summaries[0])
	}
	if summaries[1].Category != "icon" || summaries[1].Generations != 2 {
		t.Errorf("unexpected second summary: %+v", summaries[1])
	}
	if math.Abs(summaries[1].TotalCost-0.078) > 1e-9 {
		t.Errorf("icon total cost = %v, want 0.078", summaries[1].TotalCost)
	}
}

func TestTotalCost(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		err := tr.Record(ctx, models.GenerationRecord{
			CacheKey: "k", Category: "icon", Prompt: "p",
			Outcome: "generated", Method: "provider", Cost: 0.04,
			CreatedAt: base.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	total, err := tr.TotalCost(ctx, base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(total-0.08) > 1e-9 {
		t.Errorf("total = %v, want 0.08", total)
	}
}

func TestPrune(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -120)
	fresh := time.Now().UTC().AddDate(0, 0, -1)
	for _, at := range []time.Time{old, old.AddDate(0, 0, 1), fresh} {
		err := tr.Record(ctx, models.GenerationRecord{
			CacheKey: "k", Category: "icon", Prompt: "p",
			Outcome: "generated", Method: "provider", Cost: 0.04, CreatedAt: at,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	removed, err := tr.Prune(ctx, 90)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	records, err := tr.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d surviving records, want 1", len(records))
	}
}
