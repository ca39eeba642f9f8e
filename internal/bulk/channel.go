package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Aman-CERP/rowbulk/internal/document"
	rberrors "github.com/Aman-CERP/rowbulk/internal/errors"
)

// Channel accumulates units into chunks and sends them to a Backend from a
// pool of workers. Insert is called by a single producer; Wait joins all
// outstanding work and reports the aggregate outcome. Abort may be called
// from any goroutine.
type Channel struct {
	backend Backend
	target  string
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	queue  chan []Unit
	budget *semaphore.Weighted

	sendMu       sync.RWMutex
	mu           sync.Mutex
	pending      []Unit
	pendingBytes int
	closed       bool

	submitted atomic.Uint64
	acked     atomic.Uint64
	failure   atomic.Pointer[rberrors.BuildError]

	shutdownOnce sync.Once
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the channel logger (slog.Default() otherwise).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) { c.logger = logger }
}

// WithMetrics sets the collectors the channel reports to.
func WithMetrics(m *Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// Open creates a channel to target on backend and starts its workers.
// No network I/O happens here; the first request is sent after the first
// flush. Cancelling ctx stops the workers and fails the channel.
func Open(ctx context.Context, backend Backend, target string, cfg Config, opts ...Option) (*Channel, error) {
	if backend == nil {
		return nil, rberrors.ConfigError("bulk channel requires a backend", nil)
	}
	if target == "" {
		return nil, rberrors.ConfigError("bulk channel requires a target index", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, rberrors.ConfigError("invalid bulk configuration", err)
	}

	c := &Channel{
		backend: backend,
		target:  target,
		cfg:     cfg,
		logger:  slog.Default(),
		queue:   make(chan []Unit, cfg.QueueDepth),
		budget:  semaphore.NewWeighted(cfg.BufferBytes),
		pending: make([]Unit, 0, cfg.BatchSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	var gctx context.Context
	c.group, gctx = errgroup.WithContext(c.ctx)
	for i := 0; i < cfg.Workers; i++ {
		c.group.Go(func() error {
			c.worker(gctx)
			return nil
		})
	}

	c.logger.Debug("bulk_channel_opened",
		slog.String("backend", backend.Name()),
		slog.String("target", target),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("workers", cfg.Workers))

	return c, nil
}

// Insert enqueues one document. It blocks only while the local buffer budget
// or the chunk queue is full, never on backend acknowledgments. It fails with
// a BufferExhausted error when the unit can never fit the budget, when ctx
// ends while waiting for space, or after Wait or Abort.
func (c *Channel) Insert(ctx context.Context, rowID, routing string, version, sequence int64, doc *document.Document) error {
	if c.isClosed() {
		return rberrors.BufferExhausted("bulk channel is closed", nil)
	}

	body, err := doc.MarshalJSON()
	if err != nil {
		return rberrors.InternalError(fmt.Sprintf("encode document for row %s", rowID), err)
	}

	size := int64(len(body))
	if size > c.cfg.BufferBytes {
		return rberrors.BufferExhausted(
			fmt.Sprintf("document for row %s is %d bytes, larger than the %d byte buffer", rowID, size, c.cfg.BufferBytes), nil).
			WithDetail("row_id", rowID)
	}
	if !c.budget.TryAcquire(size) {
		// The pending chunk may be what holds the budget; hand it to the
		// workers before blocking.
		if err := c.flush(ctx); err != nil {
			return err
		}
		if err := c.budget.Acquire(ctx, size); err != nil {
			return rberrors.BufferExhausted("gave up waiting for buffer space", err).WithDetail("row_id", rowID)
		}
	}
	c.metrics.bufferedBytes.Add(float64(size))

	unit := Unit{
		RowID:    rowID,
		Routing:  routing,
		Version:  version,
		Sequence: sequence,
		Doc:      doc,
		Body:     body,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.release([]Unit{unit})
		return rberrors.BufferExhausted("bulk channel is closed", nil)
	}
	c.pending = append(c.pending, unit)
	c.pendingBytes += len(body)
	var chunk []Unit
	if len(c.pending) >= c.cfg.BatchSize || c.pendingBytes >= c.cfg.FlushBytes {
		chunk = c.takePendingLocked()
	}
	c.mu.Unlock()

	c.submitted.Add(1)
	c.metrics.unitsSubmitted.Inc()

	if chunk == nil {
		return nil
	}
	return c.enqueue(ctx, chunk)
}

// Submitted returns the number of units accepted by Insert so far.
func (c *Channel) Submitted() uint64 { return c.submitted.Load() }

// Acknowledged returns the number of units the backend has acknowledged so far.
func (c *Channel) Acknowledged() uint64 { return c.acked.Load() }

// Wait flushes buffered units, waits until every inserted unit has been sent
// and acknowledged, and returns the acknowledged count. If any unit failed it
// returns the first failure. Wait is the only place backend errors surface.
// Calling it again returns the same outcome.
func (c *Channel) Wait() (uint64, error) {
	c.shutdown(false)
	if f := c.failure.Load(); f != nil {
		return c.acked.Load(), f
	}
	return c.acked.Load(), nil
}

// Abort drops buffered and queued units without sending them and stops the
// workers. In-flight requests are cancelled. A later Wait reports the abort.
func (c *Channel) Abort() {
	c.shutdown(true)
}

func (c *Channel) shutdown(abort bool) {
	c.shutdownOnce.Do(func() {
		if abort {
			c.fail(rberrors.New(rberrors.ErrCodeBuildCancelled, "bulk channel aborted before completion", nil))
			c.cancel()
		}

		// Blocks until no enqueue is in progress. An aborting caller has
		// already cancelled the context those enqueues select on.
		c.sendMu.Lock()
		c.mu.Lock()
		c.closed = true
		chunk := c.takePendingLocked()
		c.mu.Unlock()

		if abort {
			c.release(chunk)
		} else if len(chunk) > 0 {
			// Workers drain the queue until it is closed, so this send
			// cannot block forever.
			c.metrics.queuedChunks.Inc()
			c.queue <- chunk
		}
		close(c.queue)
		c.sendMu.Unlock()

		_ = c.group.Wait()
		c.cancel()

		c.logger.Debug("bulk_channel_closed",
			slog.Uint64("submitted", c.submitted.Load()),
			slog.Uint64("acknowledged", c.acked.Load()),
			slog.Bool("aborted", abort))
	})
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) takePendingLocked() []Unit {
	if len(c.pending) == 0 {
		return nil
	}
	chunk := c.pending
	c.pending = make([]Unit, 0, c.cfg.BatchSize)
	c.pendingBytes = 0
	return chunk
}

// flush sends the pending chunk, if any, to the workers.
func (c *Channel) flush(ctx context.Context) error {
	c.mu.Lock()
	chunk := c.takePendingLocked()
	c.mu.Unlock()
	if chunk == nil {
		return nil
	}
	return c.enqueue(ctx, chunk)
}

// enqueue hands a chunk to the workers, waiting for queue space.
func (c *Channel) enqueue(ctx context.Context, chunk []Unit) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.isClosed() {
		c.release(chunk)
		return rberrors.BufferExhausted("bulk channel is closed", nil)
	}
	select {
	case c.queue <- chunk:
		c.metrics.queuedChunks.Inc()
		return nil
	case <-ctx.Done():
		c.release(chunk)
		return rberrors.BufferExhausted("gave up waiting for a free bulk worker", ctx.Err())
	case <-c.ctx.Done():
		c.release(chunk)
		return rberrors.BufferExhausted("bulk channel stopped", c.ctx.Err())
	}
}

func (c *Channel) worker(ctx context.Context) {
	for chunk := range c.queue {
		c.metrics.queuedChunks.Dec()
		c.send(ctx, chunk)
		c.release(chunk)
	}
}

// send submits one chunk unless the channel has already failed, in which
// case the chunk is dropped: the build is lost either way.
func (c *Channel) send(ctx context.Context, chunk []Unit) {
	if c.failure.Load() != nil {
		c.metrics.unitsFailed.Add(float64(len(chunk)))
		return
	}
	if err := ctx.Err(); err != nil {
		c.failChunk(chunk, rberrors.SubmissionFailure("build stopped before chunk was sent", err))
		return
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.failChunk(chunk, rberrors.SubmissionFailure("build stopped while throttled", err))
			return
		}
	}

	start := time.Now()
	resp, err := c.backend.Bulk(ctx, c.target, chunk)
	elapsed := time.Since(start)
	c.metrics.requestDuration.Observe(elapsed.Seconds())

	if err != nil {
		c.metrics.requests.WithLabelValues("error").Inc()
		c.failChunk(chunk, rberrors.SubmissionFailure(
			fmt.Sprintf("bulk request of %d documents to %s failed", len(chunk), c.backend.Name()), err).
			WithDetail("backend", c.backend.Name()).
			WithDetail("target", c.target))
		return
	}
	if resp == nil || len(resp.Items) != len(chunk) {
		got := 0
		if resp != nil {
			got = len(resp.Items)
		}
		c.metrics.requests.WithLabelValues("error").Inc()
		c.failChunk(chunk, rberrors.SubmissionFailure(
			fmt.Sprintf("backend acknowledged %d of %d documents", got, len(chunk)), nil).
			WithDetail("backend", c.backend.Name()))
		return
	}

	var acked, failed int
	for i, item := range resp.Items {
		if item.OK() {
			acked++
			continue
		}
		failed++
		c.fail(rberrors.SubmissionFailure(
			fmt.Sprintf("backend rejected document for row %s: %s", chunk[i].RowID, item.Error), nil).
			WithDetail("row_id", chunk[i].RowID).
			WithDetail("status", fmt.Sprintf("%d", item.Status)).
			WithDetail("backend", c.backend.Name()))
	}
	c.acked.Add(uint64(acked))
	c.metrics.unitsAcked.Add(float64(acked))
	c.metrics.unitsFailed.Add(float64(failed))

	outcome := "ok"
	if failed > 0 {
		outcome = "partial"
	}
	c.metrics.requests.WithLabelValues(outcome).Inc()

	c.logger.Debug("bulk_chunk_sent",
		slog.String("backend", c.backend.Name()),
		slog.Int("documents", len(chunk)),
		slog.Int("acknowledged", acked),
		slog.Int("failed", failed),
		slog.Duration("took", elapsed))
}

func (c *Channel) failChunk(chunk []Unit, err *rberrors.BuildError) {
	c.metrics.unitsFailed.Add(float64(len(chunk)))
	c.fail(err)
}

// fail records err if it is the first failure.
func (c *Channel) fail(err *rberrors.BuildError) {
	if c.failure.CompareAndSwap(nil, err) {
		c.logger.Error("bulk_channel_failed", rberrors.LogAttrs(err)...)
	}
}

// release returns the chunk's bytes to the buffer budget.
func (c *Channel) release(chunk []Unit) {
	var n int64
	for _, u := range chunk {
		n += int64(len(u.Body))
	}
	if n == 0 {
		return
	}
	c.budget.Release(n)
	c.metrics.bufferedBytes.Sub(float64(n))
}
