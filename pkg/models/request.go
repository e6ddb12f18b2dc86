package models

// Request describes one generated-asset request entering the pipeline.
type Request struct {
	Prompt   string            `json:"prompt"`
	Category string            `json:"category"`
	Style    map[string]string `json:"style,omitempty"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
}

// Artifact is the binary result of a generation or a cache hit.
type Artifact struct {
	Bytes       []byte  `json:"-"`
	ChargedCost float64 `json:"charged_cost"`
	Method      string  `json:"method"`
}

// Outcome classifies how the pipeline satisfied a request.
type Outcome string

const (
	OutcomeExactHit       Outcome = "exact_hit"
	OutcomeSimilarHit     Outcome = "similar_hit"
	OutcomeGenerated      Outcome = "generated"
	OutcomeBudgetDenied   Outcome = "budget_denied"
	OutcomeProviderFailed Outcome = "provider_failed"
)
