package elastic

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rowbulk/internal/bulk"
)

// productHeader is checked by the client on the first successful response.
const productHeader = "X-Elastic-Product"

type capturedRequest struct {
	path     string
	header   http.Header
	lines    []string
	user     string
	password string
}

// bulkServer answers _bulk requests, echoing one item per document. status
// overrides per-item statuses by position.
func bulkServer(t *testing.T, status map[int]int) (*httptest.Server, func() capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var last capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			require.NoError(t, err)
			body = zr
		}

		var lines []string
		sc := bufio.NewScanner(body)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		user, pass, _ := r.BasicAuth()

		mu.Lock()
		last = capturedRequest{path: r.URL.Path, header: r.Header.Clone(), lines: lines, user: user, password: pass}
		mu.Unlock()

		items := make([]map[string]any, 0, len(lines)/2)
		hasErrors := false
		for i := 0; i < len(lines)/2; i++ {
			item := map[string]any{"_id": "auto-" + string(rune('a'+i)), "status": 201}
			if s, ok := status[i]; ok {
				item["status"] = s
				item["error"] = map[string]any{"type": "mapper_parsing_exception", "reason": "failed to parse field [c2]"}
				hasErrors = true
			}
			items = append(items, map[string]any{"create": item})
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(productHeader, "Elasticsearch")
		_ = json.NewEncoder(w).Encode(map[string]any{"took": 3, "errors": hasErrors, "items": items})
	}))
	t.Cleanup(srv.Close)

	return srv, func() capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func units(bodies ...string) []bulk.Unit {
	out := make([]bulk.Unit, len(bodies))
	for i, b := range bodies {
		out[i] = bulk.Unit{RowID: "(0," + string(rune('1'+i)) + ")", Body: []byte(b)}
	}
	return out
}

func TestBulk_SendsNDJSON(t *testing.T) {
	// Given: a cluster echoing one item per document
	srv, captured := bulkServer(t, nil)
	b, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)
	defer b.Close()

	// When: sending two documents
	resp, err := b.Bulk(context.Background(), "docs", units(`{"c1":"a","c2":1,"c3":3.5}`, `{"c1":"b","c2":2}`))
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	for _, item := range resp.Items {
		assert.True(t, item.OK())
	}
	assert.Equal(t, "auto-a", resp.Items[0].ID)

	// Then: the body is one action and one source line per document
	req := captured()
	assert.Equal(t, "/docs/_bulk", req.path)
	assert.Contains(t, req.header.Get("Content-Type"), "json")
	assert.Equal(t, []string{
		`{"create":{}}`,
		`{"c1":"a","c2":1,"c3":3.5}`,
		`{"create":{}}`,
		`{"c1":"b","c2":2}`,
	}, req.lines)
}

func TestBulk_ActionMetadata(t *testing.T) {
	tests := []struct {
		name   string
		opType string
		unit   bulk.Unit
		want   string
	}{
		{
			name: "zero values omitted",
			unit: bulk.Unit{RowID: "(0,1)", Body: []byte(`{}`)},
			want: `{"create":{}}`,
		},
		{
			name: "routing",
			unit: bulk.Unit{RowID: "(0,1)", Routing: "tenant-7", Body: []byte(`{}`)},
			want: `{"create":{"routing":"tenant-7"}}`,
		},
		{
			name:   "external version with index op",
			opType: OpIndex,
			unit:   bulk.Unit{RowID: "(0,1)", Version: 42, Body: []byte(`{}`)},
			want:   `{"index":{"version":42,"version_type":"external"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, captured := bulkServer(t, nil)
			b, err := New(Config{Endpoint: srv.URL, OpType: tt.opType})
			require.NoError(t, err)

			_, err = b.Bulk(context.Background(), "docs", []bulk.Unit{tt.unit})
			require.NoError(t, err)
			req := captured()
			require.Len(t, req.lines, 2)
			assert.JSONEq(t, tt.want, req.lines[0])
		})
	}
}

func TestBulk_GzipAndBasicAuth(t *testing.T) {
	srv, captured := bulkServer(t, nil)
	b, err := New(Config{Endpoint: srv.URL + "/", Compress: true, Username: "elastic", Password: "changeme"})
	require.NoError(t, err)

	_, err = b.Bulk(context.Background(), "docs", units(`{"c1":"a"}`))
	require.NoError(t, err)

	req := captured()
	assert.Equal(t, "gzip", req.header.Get("Content-Encoding"))
	assert.Equal(t, "/docs/_bulk", req.path)
	assert.Equal(t, "elastic", req.user)
	assert.Equal(t, "changeme", req.password)
	assert.Equal(t, []string{`{"create":{}}`, `{"c1":"a"}`}, req.lines)
}

func TestBulk_ItemErrors(t *testing.T) {
	srv, _ := bulkServer(t, map[int]int{1: 400})
	b, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	resp, err := b.Bulk(context.Background(), "docs", units(`{"c2":1}`, `{"c2":"x"}`, `{"c2":3}`))
	require.NoError(t, err)
	require.Len(t, resp.Items, 3)

	assert.True(t, resp.Items[0].OK())
	assert.False(t, resp.Items[1].OK())
	assert.Equal(t, 400, resp.Items[1].Status)
	assert.Equal(t, "mapper_parsing_exception: failed to parse field [c2]", resp.Items[1].Error)
	assert.True(t, resp.Items[2].OK())
}

func TestBulk_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"index_not_found_exception"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	b, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = b.Bulk(context.Background(), "missing", units(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "index_not_found_exception")
}

func TestBulk_ItemCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(productHeader, "Elasticsearch")
		_, _ = io.WriteString(w, `{"errors":false,"items":[]}`)
	}))
	defer srv.Close()

	b, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = b.Bulk(context.Background(), "docs", units(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0 items for 1 documents")
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing endpoint", cfg: Config{}, wantErr: "endpoint is required"},
		{name: "bad scheme", cfg: Config{Endpoint: "ftp://example"}, wantErr: "http or https"},
		{name: "bad op type", cfg: Config{Endpoint: "http://localhost:9200", OpType: "upsert"}, wantErr: "op_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestItemError(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: ``, want: ""},
		{raw: `null`, want: ""},
		{raw: `{"type":"version_conflict_engine_exception","reason":"conflict"}`, want: "version_conflict_engine_exception: conflict"},
		{raw: `{"type":"es_rejected_execution_exception"}`, want: "es_rejected_execution_exception"},
		{raw: `"MapperParsingException[failed]"`, want: "MapperParsingException[failed]"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, itemError(json.RawMessage(tt.raw)))
		})
	}
}

func TestBulk_EndpointPathPrefix(t *testing.T) {
	// Given: a cluster mounted under a path prefix behind a proxy
	srv, captured := bulkServer(t, nil)
	b, err := New(Config{Endpoint: srv.URL + "/es/"})
	require.NoError(t, err)

	// When: sending a chunk
	_, err = b.Bulk(context.Background(), "rows", units(`{}`))

	// Then: the index path is appended to the prefix
	require.NoError(t, err)
	assert.Equal(t, "/es/rows/_bulk", captured().path)
}

func TestBulk_DoesNotRetry(t *testing.T) {
	// Given: a cluster that is temporarily unavailable
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	// When: sending a chunk
	_, err = b.Bulk(context.Background(), "docs", units(`{}`))

	// Then: the failure is returned after a single attempt
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestPing(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr string
	}{
		{"reachable", http.StatusOK, ""},
		{"unauthorized", http.StatusUnauthorized, "401"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var user string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				user, _, _ = r.BasicAuth()
				w.Header().Set(productHeader, "Elasticsearch")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"cluster_name":"test"}`)
			}))
			defer srv.Close()

			b, err := New(Config{Endpoint: srv.URL, Username: "elastic", Password: "secret"})
			require.NoError(t, err)

			err = b.Ping(context.Background())
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			assert.Equal(t, "elastic", user)
		})
	}
}

func TestPing_RejectsUnknownProduct(t *testing.T) {
	// Given: a server that answers but is not Elasticsearch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"name":"proxy"}`)
	}))
	defer srv.Close()

	b, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	// When/Then: the ping fails
	assert.Error(t, b.Ping(context.Background()))
}
