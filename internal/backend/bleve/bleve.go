// Package bleve writes bulk chunks into local bleve indexes, one index
// directory per target.
package bleve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"

	"github.com/Aman-CERP/rowbulk/internal/bulk"
)

// RowIDField holds the source row identifier in every indexed document.
const RowIDField = "_row_id"

// Backend implements bulk.Backend on bleve.
type Backend struct {
	mu      sync.Mutex
	dir     string
	indexes map[string]bleve.Index
	closed  bool
}

var _ bulk.Backend = (*Backend)(nil)

// New returns a backend rooted at dir. An empty dir keeps every index in
// memory.
func New(dir string) (*Backend, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &Backend{dir: dir, indexes: make(map[string]bleve.Index)}, nil
}

// Name implements bulk.Backend.
func (b *Backend) Name() string { return "bleve" }

// Bulk indexes units as one bleve batch. Ids are random; the row id is kept
// in RowIDField.
func (b *Backend) Bulk(ctx context.Context, target string, units []bulk.Unit) (*bulk.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	idx, err := b.indexLocked(target)
	if err != nil {
		return nil, err
	}

	resp := &bulk.Response{Items: make([]bulk.ItemResult, len(units))}
	batch := idx.NewBatch()
	for i, u := range units {
		var fields map[string]any
		if err := json.Unmarshal(u.Body, &fields); err != nil {
			resp.Items[i] = bulk.ItemResult{Status: http.StatusBadRequest, Error: fmt.Sprintf("invalid document: %v", err)}
			continue
		}
		fields[RowIDField] = u.RowID

		id := uuid.NewString()
		if err := batch.Index(id, fields); err != nil {
			resp.Items[i] = bulk.ItemResult{Status: http.StatusBadRequest, Error: err.Error()}
			continue
		}
		resp.Items[i] = bulk.ItemResult{ID: id, Status: http.StatusCreated}
	}

	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("failed to execute batch: %w", err)
	}
	return resp, nil
}

// Count returns the number of documents in target.
func (b *Backend) Count(target string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, fmt.Errorf("index is closed")
	}
	idx, err := b.indexLocked(target)
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

// Search runs a match query against target and returns the row ids of the
// hits, best first.
func (b *Backend) Search(ctx context.Context, target, query string, limit int) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	idx, err := b.indexLocked(target)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit
	req.Fields = []string{RowIDField}
	result, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	rows := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if rowID, ok := hit.Fields[RowIDField].(string); ok {
			rows = append(rows, rowID)
		}
	}
	return rows, nil
}

// Close closes every open index.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for name, idx := range b.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index %s: %w", name, err))
		}
	}
	b.indexes = nil
	return errors.Join(errs...)
}

func (b *Backend) indexLocked(target string) (bleve.Index, error) {
	if idx, ok := b.indexes[target]; ok {
		return idx, nil
	}
	if target == "" || strings.ContainsAny(target, `/\`) {
		return nil, fmt.Errorf("invalid index name %q", target)
	}

	var (
		idx bleve.Index
		err error
	)
	if b.dir == "" {
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	} else {
		idx, err = openIndex(filepath.Join(b.dir, target+".bleve"))
	}
	if err != nil {
		return nil, err
	}
	b.indexes[target] = idx
	return idx, nil
}

// openIndex opens the index at path, creating it when missing and
// recreating it when it is corrupt.
func openIndex(path string) (bleve.Index, error) {
	if validErr := validateIndexIntegrity(path); validErr != nil {
		slog.Warn("bleve_index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))

		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
		}
		slog.Info("bleve_index_cleared",
			slog.String("path", path),
			slog.String("reason", "corruption detected, rebuilding"))
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	} else if err != nil && isCorruptionError(err) {
		slog.Warn("bleve_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))

		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, fmt.Errorf("index corrupted, cannot clear: %w (original: %v)", removeErr, err)
		}
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index %s: %w", path, err)
	}
	return idx, nil
}

// validateIndexIntegrity checks an existing index directory before it is
// opened. A missing directory is valid: it will be created.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt") ||
		errors.Is(err, bleve.ErrorIndexMetaCorrupt)
}
