package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/basicio/internal/compiler"
	"github.com/roach88/basicio/internal/ir"
)

// Defaults used when no option overrides them.
const (
	DefaultWorkers        = 4
	DefaultLookupTimeout  = 5 * time.Second
	DefaultPersistTimeout = 10 * time.Second
	DefaultCacheSize      = 1024
)

// Engine imports batches into a Repository.
//
// An Engine holds configuration only. Every Import call owns its records,
// graph, id table and report for the duration of the call, so one Engine can
// serve concurrent imports.
type Engine struct {
	repo     Repository
	reports  ReportLog
	batchIDs BatchIDGenerator
	quota    *BatchQuota
	logger   *slog.Logger

	workers        int
	lookupTimeout  time.Duration
	persistTimeout time.Duration
	cacheSize      int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the commit and lookup worker pool size (default 4).
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithLookupTimeout bounds each external lookup (default 5s, 0 disables).
func WithLookupTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.lookupTimeout = d
	}
}

// WithPersistTimeout bounds each persistence call (default 10s, 0 disables).
func WithPersistTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.persistTimeout = d
	}
}

// WithMaxBatchSize sets the maximum number of entries per batch.
//
// Default: 10000 (DefaultMaxBatchSize). Zero disables the limit.
func WithMaxBatchSize(n int) Option {
	return func(e *Engine) {
		e.quota = NewBatchQuota(n)
	}
}

// WithCacheSize sets the per-batch lookup cache size (default 1024, 0 disables).
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithBatchIDGenerator sets the batch id source (default UUIDv7Generator).
func WithBatchIDGenerator(g BatchIDGenerator) Option {
	return func(e *Engine) {
		e.batchIDs = g
	}
}

// WithReportLog persists every report after the import finishes.
func WithReportLog(l ReportLog) Option {
	return func(e *Engine) {
		e.reports = l
	}
}

// New creates an Engine over repo.
func New(repo Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:           repo,
		batchIDs:       UUIDv7Generator{},
		quota:          NewBatchQuota(DefaultMaxBatchSize),
		logger:         slog.Default(),
		workers:        DefaultWorkers,
		lookupTimeout:  DefaultLookupTimeout,
		persistTimeout: DefaultPersistTimeout,
		cacheSize:      DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// Batch is one caller-submitted import.
type Batch struct {
	// Entries are decoded JSON/CSV rows, each with _original_id (or id),
	// fields and an optional _references map.
	Entries []map[string]any

	// ResourceType applies to entries without _resource_type.
	ResourceType string

	// Config is the policy matrix. Zero fields take DefaultBatchConfig values.
	Config ir.BatchConfig

	// Profile declares reference and optional fields. May be nil.
	Profile *ir.Profile

	// AllowEmpty accepts a batch with no entries.
	AllowEmpty bool

	// TreeField, when set, links records of one type through a parent field
	// holding another record's original id. A profile rule for the field wins.
	TreeField string
}

// Import runs one batch: normalize, plan, resolve, commit.
//
// The report is always returned, even on error. The error is non-nil only
// when the batch as a whole failed: a validation, size or cycle rejection
// (nothing ran), an atomic abort (the first record error; committed records
// are not rolled back), or cancellation of ctx. Record failures in
// best-effort mode are reported, not returned.
func (e *Engine) Import(ctx context.Context, b Batch) (*ir.Report, error) {
	start := time.Now()
	cfg := b.Config.WithDefaults()
	batchID := e.batchIDs.Generate()
	ids := NewIDMap()
	agg := NewAggregator(batchID, cfg, ids)
	log := e.logger.With("batch_id", batchID)

	log.Info("batch started",
		"entries", len(b.Entries),
		"resource_type", b.ResourceType,
		"mode", cfg.Mode,
		"on_missing", cfg.OnMissing,
		"on_ambiguous", cfg.OnAmbiguous,
	)

	finish := func(err error) (*ir.Report, error) {
		agg.SetTotal(time.Since(start))
		report := agg.Report()
		e.saveReport(ctx, report, log)
		log.Info("batch finished",
			"outcome", report.Outcome,
			"attempted", report.Counts.Attempted,
			"succeeded", report.Counts.Succeeded,
			"failed", report.Counts.Failed,
			"skipped", report.Counts.Skipped,
			"duration", report.Timing.Total,
		)
		return report, err
	}
	reject := func(err error) (*ir.Report, error) {
		ie := asImportError(err)
		agg.Reject(ie)
		log.Warn("batch rejected", "code", ie.Code, "error", ie.Message)
		return finish(ie)
	}

	if err := validateConfig(cfg); err != nil {
		return reject(err)
	}
	if err := e.quota.Check(len(b.Entries)); err != nil {
		return reject(err)
	}
	digest, err := ir.BatchDigest(b.Entries)
	if err != nil {
		return reject(ir.NewValidationError(-1, "", err.Error()))
	}
	agg.SetDigest(digest)

	phase := time.Now()
	records, err := compiler.Normalize(b.Entries, compiler.NormalizeOptions{
		ResourceType: b.ResourceType,
		Profile:      b.Profile,
		AllowEmpty:   b.AllowEmpty,
		TreeField:    b.TreeField,
	})
	agg.SetTiming(ir.StageNormalize, time.Since(phase))
	if err != nil {
		return reject(err)
	}

	phase = time.Now()
	plan, err := compiler.NewPlan(records)
	agg.SetTiming(ir.StagePlan, time.Since(phase))
	if err != nil {
		return reject(err)
	}
	agg.AddRecords(plan.Records)
	agg.SetWaves(plan.WaveIDs())
	log.Debug("plan compiled", "records", len(plan.Records), "waves", len(plan.Order.Waves))

	c := &committer{
		plan:      plan,
		persister: e.repo,
		resolver: NewResolver(e.repo, plan.Graph, ResolverOptions{
			Timeout:   e.lookupTimeout,
			CacheSize: e.cacheSize,
			Logger:    log,
		}),
		agg:            agg,
		ids:            ids,
		cfg:            cfg,
		workers:        e.workers,
		persistTimeout: e.persistTimeout,
		logger:         log,
	}
	return finish(c.run(ctx))
}

// Plan normalizes and plans a batch without any lookup or persistence.
// Used for dry runs.
func (e *Engine) Plan(b Batch) (*compiler.Plan, error) {
	if err := e.quota.Check(len(b.Entries)); err != nil {
		return nil, err
	}
	return compiler.Compile(b.Entries, compiler.NormalizeOptions{
		ResourceType: b.ResourceType,
		Profile:      b.Profile,
		AllowEmpty:   b.AllowEmpty,
		TreeField:    b.TreeField,
	})
}

func (e *Engine) saveReport(ctx context.Context, report *ir.Report, log *slog.Logger) {
	if e.reports == nil {
		return
	}
	// The run log records cancelled imports too.
	if err := e.reports.SaveReport(context.WithoutCancel(ctx), report); err != nil {
		log.Warn("save report failed", "error", err)
	}
}

func validateConfig(cfg ir.BatchConfig) error {
	if !cfg.OnMissing.Valid() {
		return ir.NewValidationError(-1, "", fmt.Sprintf("invalid on_missing policy %q", cfg.OnMissing))
	}
	if !cfg.OnAmbiguous.Valid() {
		return ir.NewValidationError(-1, "", fmt.Sprintf("invalid on_ambiguous policy %q", cfg.OnAmbiguous))
	}
	if !cfg.Mode.Valid() {
		return ir.NewValidationError(-1, "", fmt.Sprintf("invalid mode %q", cfg.Mode))
	}
	return nil
}

func asImportError(err error) *ir.ImportError {
	var ie *ir.ImportError
	if errors.As(err, &ie) {
		return ie
	}
	return ir.NewValidationError(-1, "", err.Error())
}
