package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rowbulk/internal/document"
	rberrors "github.com/Aman-CERP/rowbulk/internal/errors"
)

// fakeBackend records every chunk it receives. reject marks row ids the
// backend refuses; transportErr fails whole requests.
type fakeBackend struct {
	mu           sync.Mutex
	chunks       [][]Unit
	reject       map[string]bool
	transportErr error
	block        chan struct{}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Bulk(ctx context.Context, _ string, units []Unit) (*Response, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transportErr != nil {
		return nil, f.transportErr
	}
	f.chunks = append(f.chunks, units)
	resp := &Response{Items: make([]ItemResult, len(units))}
	for i, u := range units {
		if f.reject[u.RowID] {
			resp.Items[i] = ItemResult{Status: 400, Error: "mapper_parsing_exception"}
			continue
		}
		resp.Items[i] = ItemResult{ID: fmt.Sprintf("id-%d", i), Status: 201}
	}
	return resp, nil
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) received() []Unit {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []Unit
	for _, c := range f.chunks {
		all = append(all, c...)
	}
	return all
}

func (f *fakeBackend) chunkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

func testDoc(i int) *document.Document {
	d := document.New(2)
	d.AddInt32("id", int32(i))
	d.AddString("name", fmt.Sprintf("row-%d", i))
	return d
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 3
	cfg.Workers = 2
	cfg.QueueDepth = 1
	return cfg
}

func insertN(t *testing.T, ch *Channel, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, ch.Insert(context.Background(), fmt.Sprintf("(0,%d)", i+1), "", 0, 0, testDoc(i)))
	}
}

func TestChannel_WaitCountsEveryInsertedUnit(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		wantChunks int
	}{
		{name: "empty", n: 0, wantChunks: 0},
		{name: "single partial chunk", n: 2, wantChunks: 1},
		{name: "exact chunks", n: 6, wantChunks: 2},
		{name: "trailing partial chunk", n: 10, wantChunks: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a channel with small chunks
			backend := &fakeBackend{}
			ch, err := Open(context.Background(), backend, "docs", smallConfig())
			require.NoError(t, err)

			// When: inserting n units and waiting
			insertN(t, ch, tt.n)
			acked, err := ch.Wait()

			// Then: every unit is acknowledged in the expected number of chunks
			require.NoError(t, err)
			assert.Equal(t, uint64(tt.n), acked)
			assert.Equal(t, uint64(tt.n), ch.Submitted())
			assert.Len(t, backend.received(), tt.n)
			assert.Equal(t, tt.wantChunks, backend.chunkCount())
		})
	}
}

func TestChannel_UnitsCarryEncodedBodyAndMetadata(t *testing.T) {
	// Given: an open channel
	backend := &fakeBackend{}
	ch, err := Open(context.Background(), backend, "docs", DefaultConfig())
	require.NoError(t, err)

	// When: inserting one document with routing, version and sequence
	require.NoError(t, ch.Insert(context.Background(), "(0,1)", "shard-a", 7, 3, testDoc(1)))
	_, err = ch.Wait()
	require.NoError(t, err)

	// Then: the backend receives the encoded body and the metadata unchanged
	units := backend.received()
	require.Len(t, units, 1)
	assert.Equal(t, "(0,1)", units[0].RowID)
	assert.Equal(t, "shard-a", units[0].Routing)
	assert.Equal(t, int64(7), units[0].Version)
	assert.Equal(t, int64(3), units[0].Sequence)
	assert.JSONEq(t, `{"id":1,"name":"row-1"}`, string(units[0].Body))
}

func TestChannel_FlushesOnByteThreshold(t *testing.T) {
	// Given: a byte threshold every document exceeds
	backend := &fakeBackend{}
	cfg := DefaultConfig()
	cfg.BatchSize = 1000
	cfg.FlushBytes = 1 // every document crosses the threshold
	ch, err := Open(context.Background(), backend, "docs", cfg)
	require.NoError(t, err)

	// When: inserting four documents
	insertN(t, ch, 4)
	acked, err := ch.Wait()

	// Then: each is sent in its own chunk
	require.NoError(t, err)
	assert.Equal(t, uint64(4), acked)
	assert.Equal(t, 4, backend.chunkCount())
}

func TestChannel_TightBufferBudgetStillCompletes(t *testing.T) {
	// Given: a buffer budget that holds exactly one chunk
	backend := &fakeBackend{}
	body, err := testDoc(0).MarshalJSON()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.BatchSize = 100
	cfg.FlushBytes = len(body) * 2
	cfg.BufferBytes = int64(len(body) * 2)
	cfg.Workers = 1
	ch, err := Open(context.Background(), backend, "docs", cfg)
	require.NoError(t, err)

	// When: inserting more documents than the budget holds
	done := make(chan struct{})
	go func() {
		defer close(done)
		insertN(t, ch, 9)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Insert blocked on a budget held by the pending chunk")
	}

	// Then: backpressure releases as chunks are acknowledged
	acked, err := ch.Wait()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), acked)
}

func TestChannel_RejectedItemFailsWait(t *testing.T) {
	// Given: a backend that rejects the second row
	backend := &fakeBackend{reject: map[string]bool{"(0,2)": true}}
	cfg := smallConfig()
	cfg.Workers = 1
	ch, err := Open(context.Background(), backend, "docs", cfg)
	require.NoError(t, err)

	// When: inserting three rows and waiting
	insertN(t, ch, 3)
	acked, err := ch.Wait()

	// Then: the barrier fails naming the row and its status
	require.Error(t, err)
	assert.True(t, errors.Is(err, rberrors.ErrSubmissionFailed))
	assert.Contains(t, err.Error(), "(0,2)")
	assert.Equal(t, uint64(2), acked)

	var be *rberrors.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "400", be.Details["status"])
}

func TestChannel_TransportErrorFailsWait(t *testing.T) {
	// Given: a backend that cannot be reached
	backend := &fakeBackend{transportErr: errors.New("connection refused")}
	ch, err := Open(context.Background(), backend, "docs", smallConfig())
	require.NoError(t, err)

	// When: inserting and waiting
	insertN(t, ch, 5)
	acked, err := ch.Wait()

	// Then: nothing is acknowledged and the cause is reported
	require.Error(t, err)
	assert.True(t, errors.Is(err, rberrors.ErrSubmissionFailed))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Zero(t, acked)
}

func TestChannel_AbortDropsBufferedUnits(t *testing.T) {
	// Given: units buffered below the flush thresholds
	backend := &fakeBackend{}
	ch, err := Open(context.Background(), backend, "docs", DefaultConfig())
	require.NoError(t, err)
	insertN(t, ch, 5)

	// When: aborting
	ch.Abort()
	acked, err := ch.Wait()

	// Then: nothing reaches the backend
	require.Error(t, err)
	assert.True(t, errors.Is(err, rberrors.ErrBuildCancelled))
	assert.Zero(t, acked)
	assert.Empty(t, backend.received())
}

func TestChannel_AbortCancelsInFlightRequest(t *testing.T) {
	// Given: a backend request that never returns on its own
	backend := &fakeBackend{block: make(chan struct{})}
	cfg := smallConfig()
	cfg.BatchSize = 1
	ch, err := Open(context.Background(), backend, "docs", cfg)
	require.NoError(t, err)

	insertN(t, ch, 1)

	// When: aborting while the request is in flight
	aborted := make(chan struct{})
	go func() {
		ch.Abort()
		close(aborted)
	}()
	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("Abort did not cancel the in-flight request")
	}

	// Then: the request is cancelled and the build reports cancellation
	_, err = ch.Wait()
	assert.True(t, errors.Is(err, rberrors.ErrBuildCancelled))
}

func TestChannel_InsertAfterWait(t *testing.T) {
	ch, err := Open(context.Background(), &fakeBackend{}, "docs", DefaultConfig())
	require.NoError(t, err)

	_, err = ch.Wait()
	require.NoError(t, err)

	err = ch.Insert(context.Background(), "(0,1)", "", 0, 0, testDoc(1))
	assert.True(t, errors.Is(err, rberrors.ErrBufferExhausted))
}

func TestChannel_WaitIsIdempotent(t *testing.T) {
	ch, err := Open(context.Background(), &fakeBackend{}, "docs", DefaultConfig())
	require.NoError(t, err)
	insertN(t, ch, 2)

	first, err1 := ch.Wait()
	second, err2 := ch.Wait()
	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.Equal(t, first, second)
}

func TestChannel_OversizedDocument(t *testing.T) {
	// Given: a buffer budget smaller than one document
	cfg := DefaultConfig()
	cfg.FlushBytes = 4
	cfg.BufferBytes = 4
	ch, err := Open(context.Background(), &fakeBackend{}, "docs", cfg)
	require.NoError(t, err)

	// When: inserting it
	err = ch.Insert(context.Background(), "(0,1)", "", 0, 0, testDoc(1))

	// Then: the insert fails instead of blocking forever
	require.Error(t, err)
	assert.True(t, errors.Is(err, rberrors.ErrBufferExhausted))

	acked, err := ch.Wait()
	require.NoError(t, err)
	assert.Zero(t, acked)
}

func TestChannel_Metrics(t *testing.T) {
	// Given: collectors on a private registry and one rejected row
	backend := &fakeBackend{reject: map[string]bool{"(0,1)": true}}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ch, err := Open(context.Background(), backend, "docs", smallConfig(), WithMetrics(m))
	require.NoError(t, err)

	// When: the build completes with a failure
	insertN(t, ch, 3)
	_, err = ch.Wait()
	require.Error(t, err)

	// Then: counters split acknowledged from failed and gauges drain to zero
	assert.Equal(t, 3.0, testutil.ToFloat64(m.unitsSubmitted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.unitsAcked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unitsFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("partial")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.bufferedBytes))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.queuedChunks))
}

func TestOpen_InvalidArguments(t *testing.T) {
	tests := []struct {
		name    string
		backend Backend
		target  string
		cfg     Config
	}{
		{name: "nil backend", backend: nil, target: "docs", cfg: DefaultConfig()},
		{name: "empty target", backend: &fakeBackend{}, target: "", cfg: DefaultConfig()},
		{name: "zero batch", backend: &fakeBackend{}, target: "docs", cfg: Config{FlushBytes: 1, BufferBytes: 1, Workers: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(context.Background(), tt.backend, tt.target, tt.cfg)
			require.Error(t, err)
			assert.Equal(t, rberrors.ErrCodeConfigInvalid, rberrors.GetCode(err))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: "workers"},
		{name: "buffer smaller than flush", mutate: func(c *Config) { c.BufferBytes = 10 }, wantErr: "buffer bytes"},
		{name: "negative rate", mutate: func(c *Config) { c.RequestsPerSecond = -1 }, wantErr: "requests per second"},
		{name: "negative queue", mutate: func(c *Config) { c.QueueDepth = -1 }, wantErr: "queue depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
