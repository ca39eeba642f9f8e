// Package source defines where a build reads its schema and rows from.
package source

import (
	"context"

	"github.com/Aman-CERP/rowbulk/internal/catalog"
)

// Row is one scanned row. Values holds one raw value per catalog position,
// in the source's wire format; nil means NULL or a dropped column.
type Row struct {
	// ID locates the row in its table (a ctid, a rowid).
	ID     string
	Values [][]byte
}

// RowIterator yields rows in scan order.
//
//	for it.Next() {
//		row := it.Row()
//	}
//	if err := it.Err(); err != nil { ... }
//
// Row is only valid until the next call to Next.
type RowIterator interface {
	Next() bool
	Row() Row
	Err() error
	Close()
}

// Source is a table that can describe its columns and scan its rows.
type Source interface {
	// Columns returns the positional column list of the row type.
	Columns(ctx context.Context) ([]catalog.Column, error)
	// Relation names the table being read.
	Relation() string
	// Rows starts a scan shaped by cat.
	Rows(ctx context.Context, cat *catalog.Catalog) (RowIterator, error)
	// Format is the wire format code of the raw values Rows yields.
	Format() int16
	Close() error
}

// sliceIterator serves rows from memory.
type sliceIterator struct {
	rows []Row
	pos  int
	err  error
}

// FromRows returns an iterator over rows. A non-nil err is reported by Err
// after the rows are exhausted, mimicking a scan that fails part way.
func FromRows(rows []Row, err error) RowIterator {
	return &sliceIterator{rows: rows, pos: -1, err: err}
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.rows) {
		it.pos = len(it.rows)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Row() Row { return it.rows[it.pos] }

func (it *sliceIterator) Err() error {
	if it.pos >= len(it.rows) {
		return it.err
	}
	return nil
}

func (it *sliceIterator) Close() {}
