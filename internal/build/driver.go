// Package build runs a one-shot index build: it scans the source relation,
// projects every row into a document and streams the documents through a
// bulk channel to the indexing backend.
package build

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/Aman-CERP/rowbulk/internal/document"
	rberrors "github.com/Aman-CERP/rowbulk/internal/errors"
	"github.com/Aman-CERP/rowbulk/internal/projector"
	"github.com/Aman-CERP/rowbulk/internal/source"
)

// Inserter is the part of the bulk channel the driver needs.
type Inserter interface {
	Insert(ctx context.Context, rowID, routing string, version, sequence int64, doc *document.Document) error
	Wait() (uint64, error)
	Abort()
}

// Result reports the outcome of a build. Both tuple counts equal the number
// of rows scanned.
type Result struct {
	HeapTuples   float64
	IndexTuples  float64
	Acknowledged uint64
	Duration     time.Duration
}

// DriveOption configures Drive.
type DriveOption func(*driveOptions)

type driveOptions struct {
	logger   *slog.Logger
	progress func(rows int)
	scanDone func(rows int)
}

// WithDriveLogger sets the logger. Defaults to slog.Default().
func WithDriveLogger(logger *slog.Logger) DriveOption {
	return func(o *driveOptions) { o.logger = logger }
}

// WithProgress registers a callback invoked after every row handed to the channel.
func WithProgress(fn func(rows int)) DriveOption {
	return func(o *driveOptions) { o.progress = fn }
}

// WithScanDone registers a callback invoked once the scan finished cleanly,
// before waiting for the backend.
func WithScanDone(fn func(rows int)) DriveOption {
	return func(o *driveOptions) { o.scanDone = fn }
}

// Drive scans rows one at a time, projects each row and inserts the document
// into ch with no routing and no versioning. After the scan it waits for the
// channel to drain. Any scan, projection or insert failure aborts the channel
// and is returned without waiting. The caller owns rows and closes it.
func Drive(ctx context.Context, rows source.RowIterator, proj *projector.Projector, ch Inserter, opts ...DriveOption) (Result, error) {
	o := driveOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	n := 0
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			ch.Abort()
			return Result{}, rberrors.New(rberrors.ErrCodeBuildCancelled, "build cancelled", err).
				WithDetail("rows_scanned", strconv.Itoa(n))
		}

		row := rows.Row()
		doc, err := proj.Project(row.Values)
		if err != nil {
			ch.Abort()
			return Result{}, withRow(err, row.ID)
		}
		if err := ch.Insert(ctx, row.ID, "", 0, 0, doc); err != nil {
			ch.Abort()
			return Result{}, withRow(err, row.ID)
		}

		n++
		if o.progress != nil {
			o.progress(n)
		}
	}
	if err := rows.Err(); err != nil {
		ch.Abort()
		if ctx.Err() != nil {
			return Result{}, rberrors.New(rberrors.ErrCodeBuildCancelled, "build cancelled", err)
		}
		return Result{}, rberrors.New(rberrors.ErrCodeSourceUnavailable, "scan failed", err).
			WithDetail("rows_scanned", strconv.Itoa(n))
	}

	if o.scanDone != nil {
		o.scanDone(n)
	}
	o.logger.Info("Waiting to finish", slog.Int("rows", n))
	acked, err := ch.Wait()
	if err != nil {
		return Result{}, err
	}

	o.logger.Info("indexed "+strconv.Itoa(n)+" tuples", slog.Uint64("acknowledged", acked))
	o.logger.Debug("ntuples=" + strconv.Itoa(n))

	return Result{
		HeapTuples:   float64(n),
		IndexTuples:  float64(n),
		Acknowledged: acked,
		Duration:     time.Since(start),
	}, nil
}

// withRow attaches the row locator to coded errors and codes anything else
// as an internal failure.
func withRow(err error, rowID string) error {
	var be *rberrors.BuildError
	if !stderrors.As(err, &be) {
		be = rberrors.InternalError(err.Error(), err)
	}
	return be.WithDetail("row_id", rowID)
}
