package models

import "time"

// MetricsSnapshot is a consistent read of the pipeline counters.
type MetricsSnapshot struct {
	Requests              int64   `json:"requests"`
	ExactHits             int64   `json:"exact_hits"`
	SimilarHits           int64   `json:"similar_hits"`
	Misses                int64   `json:"misses"`
	GenerationsAttempted  int64   `json:"generations_attempted"`
	GenerationsSucceeded  int64   `json:"generations_succeeded"`
	TotalCostSaved        float64 `json:"total_cost_saved"`
	TotalCostSpent        float64 `json:"total_cost_spent"`
}

// HitRate returns the fraction of requests served from cache, in [0, 1].
func (m MetricsSnapshot) HitRate() float64 {
	if m.Requests == 0 {
		return 0
	}
	return float64(m.ExactHits+m.SimilarHits) / float64(m.Requests)
}

// StatsFile is the on-disk cache_stats.json document. Persistence is
// best-effort; the in-process counters are authoritative.
type StatsFile struct {
	TotalRequests  int64     `json:"total_requests"`
	CacheHits      int64     `json:"cache_hits"`
	ExactHits      int64     `json:"exact_hits"`
	SimilarHits    int64     `json:"similar_hits"`
	CacheMisses    int64     `json:"cache_misses"`
	TotalSavedCost float64   `json:"total_saved_cost"`
	LastUpdated    time.Time `json:"last_updated"`
}

// GenerationRecord is one row in the generation history log.
type GenerationRecord struct {
	ID        string    `json:"id"`
	CacheKey  string    `json:"cache_key"`
	Category  string    `json:"category"`
	Prompt    string    `json:"prompt"`
	Outcome   string    `json:"outcome"`
	Method    string    `json:"method"`
	Cost      float64   `json:"cost"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerationSummary aggregates history rows for one month and category.
type GenerationSummary struct {
	Month       string  `json:"month"`
	Category    string  `json:"category"`
	Generations int64   `json:"generations"`
	TotalCost   float64 `json:"total_cost"`
}
