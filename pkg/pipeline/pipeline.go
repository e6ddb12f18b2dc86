package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/appfactory-ai/assetgen/pkg/history"
	"github.com/appfactory-ai/assetgen/pkg/keys"
	"github.com/appfactory-ai/assetgen/pkg/ledger"
	"github.com/appfactory-ai/assetgen/pkg/models"
	"github.com/appfactory-ai/assetgen/pkg/provider"
	"github.com/appfactory-ai/assetgen/pkg/store"
)

// Generator produces an image artifact for a prompt. *provider.Client
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, req provider.Request) (*models.Artifact, error)
}

// Options tunes pipeline behavior. Zero values are not usable; callers
// build Options from config.
type Options struct {
	SimilarityThreshold float64
	UnitCostDefault     float64
	CleanupThreshold    float64
	EvictFraction       float64
}

// Result is the answer to one GetOrGenerate call. Bytes is nil when the
// outcome is a denial or a provider failure.
type Result struct {
	Outcome models.Outcome
	Key     string
	Bytes   []byte
	Entry   *models.Entry
	Cost    float64
}

// Pipeline is the request orchestrator: cache lookups, budget gating,
// generation, and post-insert maintenance.
type Pipeline struct {
	store   *store.Store
	ledger  *ledger.Ledger
	gen     Generator
	hist    history.Tracker
	metrics *Metrics
	logger  *zap.Logger
	opts    Options

	flight   singleflight.Group
	evicting atomic.Bool
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithHistory attaches a generation history tracker.
func WithHistory(t history.Tracker) Option {
	return func(p *Pipeline) { p.hist = t }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics replaces the default (stats-file seeded) metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New wires a pipeline over its collaborators.
func New(st *store.Store, led *ledger.Ledger, gen Generator, opts Options, extra ...Option) *Pipeline {
	p := &Pipeline{
		store:  st,
		ledger: led,
		gen:    gen,
		logger: zap.NewNop(),
		opts:   opts,
	}
	for _, o := range extra {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = LoadMetrics(st.StatsPath())
	}
	return p
}

// Metrics exposes the pipeline counters.
func (p *Pipeline) Metrics() *Metrics { return p.metrics }

// GetOrGenerate satisfies one asset request: exact cache hit, then
// similarity reuse, then budget-gated generation. Concurrent misses for
// the same key share a single generation. The returned error is non-nil
// for provider failures and for storage failures after a successful
// generation; in the latter case Result still carries the bytes and the
// generated outcome.
func (p *Pipeline) GetOrGenerate(ctx context.Context, req models.Request) (Result, error) {
	p.metrics.requests.Add(1)
	defer p.maybeEvict()

	if err := p.ledger.RolloverIfNeeded(); err != nil {
		p.logger.Warn("budget rollover persist failed", zap.Error(err))
	}

	key := keys.Derive(req.Category, req.Prompt, req.Style)
	normalized := keys.NormalizePrompt(req.Prompt)

	if res, ok := p.lookupExact(key); ok {
		return res, nil
	}
	if res, ok := p.lookupSimilar(req.Category, normalized); ok {
		return res, nil
	}

	p.metrics.misses.Add(1)

	v, err, _ := p.flight.Do(key, func() (any, error) {
		res, genErr := p.generate(ctx, req, key, normalized)
		return res, genErr
	})
	res := v.(Result)

	p.persistStats()
	return res, err
}

func (p *Pipeline) lookupExact(key string) (Result, bool) {
	entry := p.store.LookupExact(key)
	if entry == nil {
		return Result{}, false
	}
	blob, err := p.store.ReadBlob(key)
	if err != nil {
		p.logger.Warn("cache blob unreadable, treating as miss",
			zap.String("key", key), zap.Error(err))
		return Result{}, false
	}

	saved := p.unitCostOf(entry)
	if err := p.store.Touch(key, saved); err != nil {
		p.logger.Warn("touch failed", zap.String("key", key), zap.Error(err))
	}
	p.metrics.exactHits.Add(1)
	p.metrics.addSaved(saved)
	p.persistStats()

	return Result{
		Outcome: models.OutcomeExactHit,
		Key:     key,
		Bytes:   blob,
		Entry:   entry,
	}, true
}

func (p *Pipeline) lookupSimilar(category, normalized string) (Result, bool) {
	entry := p.store.LookupSimilar(category, normalized, p.opts.SimilarityThreshold)
	if entry == nil {
		return Result{}, false
	}
	blob, err := p.store.ReadBlob(entry.Key)
	if err != nil {
		p.logger.Warn("similar blob unreadable, treating as miss",
			zap.String("key", entry.Key), zap.Error(err))
		return Result{}, false
	}

	saved := p.unitCostOf(entry)
	if err := p.store.Touch(entry.Key, saved); err != nil {
		p.logger.Warn("touch failed", zap.String("key", entry.Key), zap.Error(err))
	}
	p.metrics.similarHits.Add(1)
	p.metrics.addSaved(saved)
	p.persistStats()

	return Result{
		Outcome: models.OutcomeSimilarHit,
		Key:     entry.Key,
		Bytes:   blob,
		Entry:   entry,
	}, true
}

// generate runs the miss path for one key. Coalesced callers all receive
// the Result produced here.
func (p *Pipeline) generate(ctx context.Context, req models.Request, key, normalized string) (Result, error) {
	unitCost := p.opts.UnitCostDefault
	if !p.ledger.CanSpend(unitCost) {
		snap := p.ledger.Snapshot()
		p.logger.Info("generation denied by budget",
			zap.String("key", key),
			zap.Float64("spent", snap.Spent),
			zap.Float64("budget", snap.Budget))
		p.record(ctx, key, req, models.OutcomeBudgetDenied, "", 0, 0)
		return Result{Outcome: models.OutcomeBudgetDenied, Key: key}, nil
	}

	p.metrics.generationsAttempted.Add(1)
	start := time.Now()

	artifact, err := p.gen.Generate(ctx, provider.Request{
		Prompt: req.Prompt,
		Width:  req.Width,
		Height: req.Height,
	})
	latency := time.Since(start)
	if err != nil {
		p.logger.Warn("generation failed", zap.String("key", key), zap.Error(err))
		p.record(ctx, key, req, models.OutcomeProviderFailed, "", 0, latency)
		return Result{Outcome: models.OutcomeProviderFailed, Key: key}, err
	}

	if err := p.ledger.RecordSpend(artifact.ChargedCost); err != nil {
		p.logger.Warn("spend record failed", zap.Float64("cost", artifact.ChargedCost), zap.Error(err))
	}
	p.metrics.addSpent(artifact.ChargedCost)

	now := time.Now()
	entry := &models.Entry{
		Key:              key,
		Category:         req.Category,
		PromptRaw:        req.Prompt,
		PromptNormalized: normalized,
		KeywordSet:       keys.Tokenize(normalized),
		StyleCanonical:   keys.CanonicalizeStyle(req.Style),
		CreatedAt:        now,
		LastAccessedAt:   now,
		AccessCount:      1,
		UnitCost:         artifact.ChargedCost,
	}

	insertErr := p.store.Insert(entry, artifact.Bytes)
	p.metrics.generationsSucceeded.Add(1)
	p.record(ctx, key, req, models.OutcomeGenerated, artifact.Method, artifact.ChargedCost, latency)

	res := Result{
		Outcome: models.OutcomeGenerated,
		Key:     key,
		Bytes:   artifact.Bytes,
		Entry:   entry,
		Cost:    artifact.ChargedCost,
	}
	if insertErr != nil {
		// The spend stands and the caller still gets the bytes; only
		// the cached copy is lost.
		p.logger.Error("cache insert failed after generation",
			zap.String("key", key), zap.Error(insertErr))
		return res, insertErr
	}
	return res, nil
}

// maybeEvict kicks one background eviction pass when the store is over
// its cleanup threshold. At most one pass runs at a time.
func (p *Pipeline) maybeEvict() {
	if !p.store.NeedsCleanup(p.opts.CleanupThreshold) {
		return
	}
	if !p.evicting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer p.evicting.Store(false)
		report := p.store.RunEviction(p.opts.EvictFraction)
		p.logger.Info("eviction pass finished",
			zap.Int("removed", report.Removed()),
			zap.Int64("freed_bytes", report.FreedBytes),
			zap.Int("failed", report.Failed))
	}()
}

// unitCostOf values a hit at the entry's own generation cost, falling
// back to the configured default for records that predate cost tracking.
func (p *Pipeline) unitCostOf(e *models.Entry) float64 {
	if e.UnitCost > 0 {
		return e.UnitCost
	}
	return p.opts.UnitCostDefault
}

func (p *Pipeline) record(ctx context.Context, key string, req models.Request, outcome models.Outcome, method string, cost float64, latency time.Duration) {
	if p.hist == nil {
		return
	}
	rec := models.GenerationRecord{
		CacheKey:  key,
		Category:  req.Category,
		Prompt:    req.Prompt,
		Outcome:   string(outcome),
		Method:    method,
		Cost:      cost,
		LatencyMs: latency.Milliseconds(),
	}
	if err := p.hist.Record(ctx, rec); err != nil {
		p.logger.Warn("history record failed", zap.Error(err))
	}
}

func (p *Pipeline) persistStats() {
	if err := p.metrics.persist(p.store.StatsPath()); err != nil {
		p.logger.Debug("stats persist failed", zap.Error(err))
	}
}
