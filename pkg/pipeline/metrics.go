package pipeline

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/appfactory-ai/assetgen/pkg/models"
)

// Metrics holds the pipeline counters. Counters are monotonic within a
// process; persistence to the stats document is best-effort.
type Metrics struct {
	requests             atomic.Int64
	exactHits            atomic.Int64
	similarHits          atomic.Int64
	misses               atomic.Int64
	generationsAttempted atomic.Int64
	generationsSucceeded atomic.Int64

	mu        sync.Mutex
	costSaved float64
	costSpent float64
}

// NewMetrics returns zeroed metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// LoadMetrics seeds metrics from a stats document if one exists.
func LoadMetrics(path string) *Metrics {
	m := NewMetrics()

	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	var stats models.StatsFile
	if err := json.Unmarshal(data, &stats); err != nil {
		return m
	}

	m.requests.Store(stats.TotalRequests)
	m.misses.Store(stats.CacheMisses)
	m.costSaved = stats.TotalSavedCost

	// Older stats documents carry only the combined hit count; count
	// those as exact rather than inventing a split.
	if stats.ExactHits+stats.SimilarHits == 0 {
		m.exactHits.Store(stats.CacheHits)
	} else {
		m.exactHits.Store(stats.ExactHits)
		m.similarHits.Store(stats.SimilarHits)
	}
	return m
}

func (m *Metrics) addSaved(amount float64) {
	m.mu.Lock()
	m.costSaved += amount
	m.mu.Unlock()
}

func (m *Metrics) addSpent(amount float64) {
	m.mu.Lock()
	m.costSpent += amount
	m.mu.Unlock()
}

// Snapshot returns a point-in-time view of all counters.
func (m *Metrics) Snapshot() models.MetricsSnapshot {
	m.mu.Lock()
	saved, spent := m.costSaved, m.costSpent
	m.mu.Unlock()

	return models.MetricsSnapshot{
		Requests:             m.requests.Load(),
		ExactHits:            m.exactHits.Load(),
		SimilarHits:          m.similarHits.Load(),
		Misses:               m.misses.Load(),
		GenerationsAttempted: m.generationsAttempted.Load(),
		GenerationsSucceeded: m.generationsSucceeded.Load(),
		TotalCostSaved:       saved,
		TotalCostSpent:       spent,
	}
}

// persist writes the stats document. Failures are the caller's to log;
// the in-process counters stay authoritative either way.
func (m *Metrics) persist(path string) error {
	snap := m.Snapshot()
	stats := models.StatsFile{
		TotalRequests:  snap.Requests,
		CacheHits:      snap.ExactHits + snap.SimilarHits,
		ExactHits:      snap.ExactHits,
		SimilarHits:    snap.SimilarHits,
		CacheMisses:    snap.Misses,
		TotalSavedCost: snap.TotalCostSaved,
		LastUpdated:    time.Now(),
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
