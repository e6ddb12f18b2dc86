// Package ledger implements the persistent monthly spend ledger. The
// ledger holds a single BudgetState record; crossing a wall-clock month
// boundary atomically replaces it with a zeroed record for the new month.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/appfactory-ai/assetgen/pkg/models"
)

// moneyEpsilon absorbs float64 accumulation error in budget comparisons.
const moneyEpsilon = 1e-9

// ErrNegativeAmount is returned when a spend amount is negative.
var ErrNegativeAmount = errors.New("spend amount must not be negative")

// Ledger tracks spending against a configured monthly limit. All methods
// are safe for concurrent use; a single mutex serializes the
// rollover/check/record triple.
type Ledger struct {
	mu     sync.Mutex
	path   string
	budget float64
	state  models.BudgetState
	now    func() time.Time
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New opens or creates the ledger file at path. budget is the configured
// monthly limit; it is not part of the persisted state.
func New(path string, budget float64, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		path:   path,
		budget: budget,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &l.state); err != nil {
			return nil, fmt.Errorf("parse ledger: %w", err)
		}
	case os.IsNotExist(err):
		l.state = models.BudgetState{
			MonthID:     monthID(l.now()),
			LastUpdated: l.now(),
		}
		if err := l.persistLocked(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return l, nil
}

func monthID(t time.Time) string {
	return t.Format("2006-01")
}

// CurrentMonth returns the month the ledger currently accounts for.
func (l *Ledger) CurrentMonth() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.MonthID
}

// RolloverIfNeeded resets the ledger when the wall-clock month no longer
// matches the stored month. Idempotent within a month.
func (l *Ledger) RolloverIfNeeded() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rolloverLocked()
}

func (l *Ledger) rolloverLocked() error {
	current := monthID(l.now())
	if l.state.MonthID == current {
		return nil
	}
	l.state = models.BudgetState{
		MonthID:     current,
		LastUpdated: l.now(),
	}
	return l.persistLocked()
}

// CanSpend reports whether amount fits within the remaining budget.
func (l *Ledger) CanSpend(amount float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Spent+amount <= l.budget+moneyEpsilon
}

// RecordSpend adds amount to the month's spend and increments the
// generation counter. The write is durable before RecordSpend returns.
func (l *Ledger) RecordSpend(amount float64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.Spent += amount
	l.state.Generations++
	l.state.LastUpdated = l.now()
	return l.persistLocked()
}

// Snapshot returns the current ledger state against the configured budget.
func (l *Ledger) Snapshot() models.BudgetSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.budget - l.state.Spent
	if remaining < 0 {
		remaining = 0
	}
	return models.BudgetSnapshot{
		MonthID:     l.state.MonthID,
		Spent:       l.state.Spent,
		Generations: l.state.Generations,
		Budget:      l.budget,
		Remaining:   remaining,
	}
}

// persistLocked writes the state durably: temp file, fsync, rename.
func (l *Ledger) persistLocked() error {
	data, err := json.MarshalIndent(l.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
