package models

import "time"

// BudgetState is the single persisted ledger record for the current month.
type BudgetState struct {
	MonthID     string    `json:"month_id"`
	Spent       float64   `json:"spent"`
	Generations int64     `json:"generations"`
	LastUpdated time.Time `json:"last_updated"`
}

// BudgetSnapshot is a point-in-time view of the ledger against the
// configured monthly limit.
type BudgetSnapshot struct {
	MonthID     string  `json:"month_id"`
	Spent       float64 `json:"spent"`
	Generations int64   `json:"generations"`
	Budget      float64 `json:"budget"`
	Remaining   float64 `json:"remaining"`
}
