// Package elastic submits bulk chunks to an Elasticsearch cluster through
// the _bulk API.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/Aman-CERP/rowbulk/internal/bulk"
)

const (
	// OpCreate fails items whose id already exists. With auto-assigned ids
	// it never conflicts, which makes it the append-only default.
	OpCreate = "create"
	// OpIndex creates or overwrites.
	OpIndex = "index"
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// Config configures the Elasticsearch backend.
type Config struct {
	Endpoint string
	Username string
	Password string
	// Compress gzips request bodies.
	Compress bool
	// OpType is OpCreate (default) or OpIndex.
	OpType string
	// Timeout bounds each request. Zero means no limit beyond the caller's ctx.
	Timeout time.Duration

	// Transport overrides the client's HTTP transport.
	Transport http.RoundTripper
}

// Backend implements bulk.Backend on the Elasticsearch client.
type Backend struct {
	cfg    Config
	client *elasticsearch.Client
}

var _ bulk.Backend = (*Backend)(nil)

// New validates cfg and returns a backend. It does not contact the cluster.
func New(cfg Config) (*Backend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("elasticsearch endpoint is required")
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid elasticsearch endpoint %q: %w", cfg.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("elasticsearch endpoint %q must use http or https", cfg.Endpoint)
	}

	switch cfg.OpType {
	case "":
		cfg.OpType = OpCreate
	case OpCreate, OpIndex:
	default:
		return nil, fmt.Errorf("unknown bulk op_type %q (valid options: create, index)", cfg.OpType)
	}

	// The transport appends request paths to the address path verbatim.
	u.Path = strings.TrimRight(u.Path, "/")

	// Any failure is fatal to the build, so the client must not retry.
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:           []string{u.String()},
		Username:            cfg.Username,
		Password:            cfg.Password,
		CompressRequestBody: cfg.Compress,
		Transport:           cfg.Transport,
		DisableRetry:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &Backend{cfg: cfg, client: client}, nil
}

// Name implements bulk.Backend.
func (b *Backend) Name() string { return "elasticsearch" }

// Close implements bulk.Backend. The client holds no resources of its own.
func (b *Backend) Close() error { return nil }

// Ping checks that the cluster answers its info endpoint with the
// configured credentials.
func (b *Backend) Ping(ctx context.Context) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	res, err := esapi.InfoRequest{}.Do(ctx, b.client)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("ping returned %s", res.Status())
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxErrorBody))
	return nil
}

// Bulk sends units as one _bulk request against target.
func (b *Backend) Bulk(ctx context.Context, target string, units []bulk.Unit) (*bulk.Response, error) {
	body, err := b.encode(units)
	if err != nil {
		return nil, err
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	res, err := esapi.BulkRequest{Index: target, Body: body}.Do(ctx, b.client)
	if err != nil {
		return nil, fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, fmt.Errorf("bulk request returned %s: %s", res.Status(), strings.TrimSpace(string(snippet)))
	}

	return decodeResponse(res.Body, len(units))
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, b.cfg.Timeout)
	}
	return ctx, func() {}
}

// actionMeta is the metadata object of an action line. The index comes from
// the request path and _id is left to the cluster.
type actionMeta struct {
	Routing     string `json:"routing,omitempty"`
	Version     int64  `json:"version,omitempty"`
	VersionType string `json:"version_type,omitempty"`
}

// encode renders units as NDJSON: one action line and one source line each.
func (b *Backend) encode(units []bulk.Unit) (io.Reader, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, u := range units {
		meta := actionMeta{Routing: u.Routing}
		if u.Version != 0 {
			meta.Version = u.Version
			meta.VersionType = "external"
		}
		// Encoder.Encode terminates each action with a newline.
		if err := enc.Encode(map[string]actionMeta{b.cfg.OpType: meta}); err != nil {
			return nil, fmt.Errorf("encode action for row %s: %w", u.RowID, err)
		}
		buf.Write(u.Body)
		buf.WriteByte('\n')
	}
	return &buf, nil
}

type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]bulkItemOutcome `json:"items"`
}

type bulkItemOutcome struct {
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

type bulkItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func decodeResponse(r io.Reader, want int) (*bulk.Response, error) {
	var br bulkResponse
	if err := json.NewDecoder(r).Decode(&br); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}
	if len(br.Items) != want {
		return nil, fmt.Errorf("bulk response has %d items for %d documents", len(br.Items), want)
	}

	out := &bulk.Response{Items: make([]bulk.ItemResult, len(br.Items))}
	for i, item := range br.Items {
		// Each item is a single-key object keyed by the op type.
		for _, outcome := range item {
			out.Items[i] = bulk.ItemResult{
				ID:     outcome.ID,
				Status: outcome.Status,
				Error:  itemError(outcome.Error),
			}
		}
	}
	return out, nil
}

// itemError flattens an item error into "type: reason". Older clusters
// report a bare string.
func itemError(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var e bulkItemError
	if err := json.Unmarshal(raw, &e); err == nil && (e.Type != "" || e.Reason != "") {
		if e.Reason == "" {
			return e.Type
		}
		return e.Type + ": " + e.Reason
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
