package build

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aman-CERP/rowbulk/internal/backend"
	"github.com/Aman-CERP/rowbulk/internal/bulk"
	"github.com/Aman-CERP/rowbulk/internal/catalog"
	"github.com/Aman-CERP/rowbulk/internal/config"
	rberrors "github.com/Aman-CERP/rowbulk/internal/errors"
	"github.com/Aman-CERP/rowbulk/internal/projector"
	"github.com/Aman-CERP/rowbulk/internal/source"
	"github.com/Aman-CERP/rowbulk/internal/source/postgres"
	"github.com/Aman-CERP/rowbulk/internal/source/sqlite"
	"github.com/Aman-CERP/rowbulk/internal/ui"
)

// progressInterval is how often the runner refreshes the renderer.
const progressInterval = 200 * time.Millisecond

// Runner performs builds for one configuration.
type Runner struct {
	cfg         *config.Config
	logger      *slog.Logger
	renderer    ui.Renderer
	registry    *prometheus.Registry
	metricsFile string

	openSource  func(ctx context.Context, cfg config.SourceConfig) (source.Source, error)
	openBackend func(cfg *config.Config) (bulk.Backend, error)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithRenderer reports progress to renderer.
func WithRenderer(renderer ui.Renderer) RunnerOption {
	return func(r *Runner) { r.renderer = renderer }
}

// WithRegistry registers the channel metrics with reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) RunnerOption {
	return func(r *Runner) { r.registry = reg }
}

// WithMetricsFile writes the channel metrics in the Prometheus text format
// to path once the build ends, successful or not.
func WithMetricsFile(path string) RunnerOption {
	return func(r *Runner) { r.metricsFile = path }
}

// WithBackend overrides how the backend is created.
func WithBackend(open func(cfg *config.Config) (bulk.Backend, error)) RunnerOption {
	return func(r *Runner) { r.openBackend = open }
}

// WithSource overrides how the source is opened.
func WithSource(open func(ctx context.Context, cfg config.SourceConfig) (source.Source, error)) RunnerOption {
	return func(r *Runner) { r.openSource = open }
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg *config.Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:         cfg,
		logger:      slog.Default(),
		openSource:  OpenSource,
		openBackend: backend.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
	}
	return r
}

// OpenSource opens the configured source driver.
func OpenSource(ctx context.Context, cfg config.SourceConfig) (source.Source, error) {
	if cfg.DSN == "" {
		return nil, rberrors.ConfigError("source.dsn is required", nil).
			WithSuggestion("Set source.dsn in .rowbulk.yaml or pass --dsn")
	}

	switch cfg.Driver {
	case config.DriverPostgres, "":
		src, err := postgres.Open(ctx, cfg.DSN, postgres.Options{Table: cfg.Table, RowTypeOID: cfg.RowTypeOID})
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.DriverSQLite:
		src, err := sqlite.Open(ctx, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, rberrors.ConfigError(fmt.Sprintf("unknown source driver %q", cfg.Driver), nil)
	}
}

// ResolveCatalog snapshots the source's column list.
func ResolveCatalog(ctx context.Context, src source.Source) (*catalog.Catalog, error) {
	cols, err := src.Columns(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.New(cols, catalog.WithRelation(src.Relation()))
}

// NewProjector creates the projector for a source and catalog.
func NewProjector(cfg *config.Config, src source.Source, cat *catalog.Catalog) (*projector.Projector, error) {
	policy, err := projector.ParseUnknownPolicy(cfg.Projection.UnknownBuiltin)
	if err != nil {
		return nil, rberrors.ConfigError(err.Error(), err)
	}
	return projector.New(cat, projector.WithFormat(src.Format()), projector.WithUnknownPolicy(policy)), nil
}

// BulkConfig converts the bulk section of the configuration.
func BulkConfig(cfg config.BulkConfig) bulk.Config {
	return bulk.Config{
		BatchSize:         cfg.BatchSize,
		FlushBytes:        cfg.FlushBytes,
		BufferBytes:       cfg.BufferBytes,
		Workers:           cfg.Workers,
		QueueDepth:        cfg.QueueDepth,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

// Catalog opens the source and returns its catalog without building anything.
func (r *Runner) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	src, err := r.openSource(ctx, r.cfg.Source)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	return ResolveCatalog(ctx, src)
}

// Project writes up to limit projected documents to w as NDJSON without
// submitting them anywhere. A limit of zero means every row.
func (r *Runner) Project(ctx context.Context, w io.Writer, limit int) (int, error) {
	src, err := r.openSource(ctx, r.cfg.Source)
	if err != nil {
		return 0, err
	}
	defer func() { _ = src.Close() }()

	cat, err := ResolveCatalog(ctx, src)
	if err != nil {
		return 0, err
	}
	proj, err := NewProjector(r.cfg, src, cat)
	if err != nil {
		return 0, err
	}

	rows, err := src.Rows(ctx, cat)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for (limit <= 0 || n < limit) && rows.Next() {
		if err := ctx.Err(); err != nil {
			return n, rberrors.New(rberrors.ErrCodeBuildCancelled, "projection cancelled", err)
		}
		row := rows.Row()
		doc, err := proj.Project(row.Values)
		if err != nil {
			return n, withRow(err, row.ID)
		}
		body, err := doc.MarshalJSON()
		if err != nil {
			return n, rberrors.InternalError("failed to encode document", err)
		}
		if _, err := w.Write(append(body, '\n')); err != nil {
			return n, fmt.Errorf("failed to write document: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, rberrors.New(rberrors.ErrCodeSourceUnavailable, "scan failed", err)
	}
	return n, nil
}

// Run performs one build: lock, catalog, scan, submit, wait.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	target := r.cfg.Backend.Index
	if target == "" {
		return Result{}, rberrors.ConfigError("backend.index is required", nil).
			WithSuggestion("Set backend.index in .rowbulk.yaml or pass --index")
	}

	lock := NewBuildLock(r.cfg.DataDir, target)
	if err := lock.Acquire(); err != nil {
		return Result{}, err
	}
	defer func() { _ = lock.Release() }()

	if r.renderer != nil {
		if err := r.renderer.Start(ctx); err != nil {
			return Result{}, fmt.Errorf("failed to start progress display: %w", err)
		}
		defer func() { _ = r.renderer.Stop() }()
		r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageCatalog, Message: "resolving columns"})
	}

	start := time.Now()
	stats := ui.CompletionStats{Backend: r.cfg.Backend.Kind, Target: target}

	res, err := r.run(ctx, target, &stats)
	stats.Duration = time.Since(start)

	if r.metricsFile != "" {
		if werr := prometheus.WriteToTextfile(r.metricsFile, r.registry); werr != nil {
			r.logger.Warn("metrics_write_failed",
				slog.String("path", r.metricsFile),
				slog.String("error", werr.Error()))
		}
	}

	if err != nil {
		r.logger.Error("build_failed", append([]any{slog.String("target", target)}, rberrors.LogAttrs(err)...)...)
		if r.renderer != nil {
			r.renderer.AddError(ui.ErrorEvent{RowID: rowIDOf(err), Err: err})
			stats.Errors = 1
			r.renderer.Complete(stats)
		}
		return Result{}, err
	}

	r.logger.Info("build_complete",
		slog.String("relation", stats.Relation),
		slog.String("target", target),
		slog.Float64("heap_tuples", res.HeapTuples),
		slog.Uint64("acknowledged", res.Acknowledged),
		slog.Duration("duration", res.Duration))
	if r.renderer != nil {
		r.renderer.Complete(stats)
	}
	return res, nil
}

func (r *Runner) run(ctx context.Context, target string, stats *ui.CompletionStats) (Result, error) {
	src, err := r.openSource(ctx, r.cfg.Source)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = src.Close() }()

	cat, err := ResolveCatalog(ctx, src)
	if err != nil {
		return Result{}, err
	}
	stats.Relation = cat.Relation()
	r.logger.Info("catalog_resolved",
		slog.String("relation", cat.Relation()),
		slog.Int("columns", cat.Len()),
		slog.Int("live", cat.Live()),
		slog.String("attributes", cat.String()))

	proj, err := NewProjector(r.cfg, src, cat)
	if err != nil {
		return Result{}, err
	}

	be, err := r.openBackend(r.cfg)
	if err != nil {
		return Result{}, rberrors.New(rberrors.ErrCodeBackendUnavailable, "failed to open backend", err)
	}
	defer func() {
		if cerr := be.Close(); cerr != nil {
			r.logger.Warn("backend_close_failed", slog.String("error", cerr.Error()))
		}
	}()

	ch, err := bulk.Open(ctx, be, target, BulkConfig(r.cfg.Bulk),
		bulk.WithLogger(r.logger),
		bulk.WithMetrics(bulk.NewMetrics(r.registry)))
	if err != nil {
		return Result{}, err
	}

	rows, err := src.Rows(ctx, cat)
	if err != nil {
		ch.Abort()
		return Result{}, err
	}
	defer rows.Close()

	var scanned atomic.Int64
	var submitting atomic.Bool
	stopProgress := r.reportProgress(ctx, cat.Relation(), ch, &scanned, &submitting)
	defer stopProgress()

	res, err := Drive(ctx, rows, proj, ch,
		WithDriveLogger(r.logger),
		WithProgress(func(n int) { scanned.Store(int64(n)) }),
		WithScanDone(func(n int) {
			scanned.Store(int64(n))
			submitting.Store(true)
		}))
	stats.Rows = int(scanned.Load())
	stats.Acknowledged = int(ch.Acknowledged())
	return res, err
}

// reportProgress polls the scan and acknowledgment counters until the
// returned stop function is called.
func (r *Runner) reportProgress(ctx context.Context, relation string, ch *bulk.Channel, scanned *atomic.Int64, submitting *atomic.Bool) func() {
	if r.renderer == nil {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if submitting.Load() {
				r.renderer.UpdateProgress(ui.ProgressEvent{
					Stage:   ui.StageSubmitting,
					Current: int(ch.Acknowledged()),
					Total:   int(scanned.Load()),
					Message: "waiting for acknowledgments",
				})
				continue
			}
			r.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:   ui.StageScanning,
				Current: int(scanned.Load()),
				Message: fmt.Sprintf("%s (%d acknowledged)", relation, ch.Acknowledged()),
			})
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// rowIDOf returns the row locator attached to a build error, if any.
func rowIDOf(err error) string {
	var be *rberrors.BuildError
	if stderrors.As(err, &be) && be.Details != nil {
		return be.Details["row_id"]
	}
	return ""
}
