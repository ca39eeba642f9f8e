// Package bulk implements the asynchronous, batched submission channel
// between the scan loop and an indexing backend.
package bulk

import (
	"context"

	"github.com/Aman-CERP/rowbulk/internal/document"
)

// Unit is one document queued for submission with its delivery metadata.
// Zero Routing, Version and Sequence mean "unset": the backend assigns the
// document identifier and applies no routing or concurrency control.
type Unit struct {
	RowID    string
	Routing  string
	Version  int64
	Sequence int64
	Doc      *document.Document

	// Body is the JSON encoding of Doc, produced once at insert time.
	Body []byte
}

// ItemResult is the backend's acknowledgment of one unit.
type ItemResult struct {
	// ID is the identifier the backend assigned, if it reports one.
	ID     string
	Status int
	Error  string
}

// OK reports whether the unit was accepted.
func (r ItemResult) OK() bool {
	return r.Error == "" && r.Status < 300
}

// Response holds per-unit results in request order.
type Response struct {
	Items []ItemResult
}

// Backend submits chunks of units to an index.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Bulk sends one chunk. A returned error fails the whole chunk;
	// otherwise Response must carry one item per unit.
	Bulk(ctx context.Context, target string, units []Unit) (*Response, error)
	// Close releases backend resources.
	Close() error
}
