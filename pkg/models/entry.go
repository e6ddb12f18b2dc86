package models

import "time"

// Entry is one cached asset record in the metadata document.
type Entry struct {
	Key              string    `json:"key"`
	Category         string    `json:"category"`
	PromptRaw        string    `json:"prompt_raw"`
	PromptNormalized string    `json:"prompt_normalized"`
	KeywordSet       []string  `json:"keyword_set"`
	StyleCanonical   string    `json:"style_canonical"`
	BlobRef          string    `json:"blob_ref"`
	ByteSize         int64     `json:"byte_size"`
	CreatedAt        time.Time `json:"created_at"`
	LastAccessedAt   time.Time `json:"last_accessed_at"`
	AccessCount      int64     `json:"access_count"`
	CostSaved        float64   `json:"cost_saved"`
	UnitCost         float64   `json:"unit_cost"`
}

// Expired reports whether the entry is past maxAge as of now.
func (e *Entry) Expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(e.CreatedAt) > maxAge
}

// CacheMetadata is the on-disk cache_metadata.json document.
type CacheMetadata struct {
	Assets      map[string]*Entry `json:"assets"`
	Created     time.Time         `json:"created"`
	LastCleanup time.Time         `json:"last_cleanup"`
	LastUpdated time.Time         `json:"last_updated"`
}
