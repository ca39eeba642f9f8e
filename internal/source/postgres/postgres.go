// Package postgres reads the schema and rows of a PostgreSQL table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Aman-CERP/rowbulk/internal/catalog"
	rberrors "github.com/Aman-CERP/rowbulk/internal/errors"
	"github.com/Aman-CERP/rowbulk/internal/source"
)

const columnsQuery = `
SELECT attname, atttypid, atttypmod, attisdropped
FROM pg_catalog.pg_attribute
WHERE attrelid = $1 AND attnum > 0
ORDER BY attnum`

// Options selects the relation. RowTypeOID, when set, wins over Table.
type Options struct {
	Table      string
	RowTypeOID uint32
}

// Source reads one relation over a single connection.
type Source struct {
	conn     *pgx.Conn
	opts     Options
	relOID   uint32
	relation string
}

var _ source.Source = (*Source)(nil)

// Open connects to dsn. The relation is resolved by Columns.
func Open(ctx context.Context, dsn string, opts Options) (*Source, error) {
	if opts.Table == "" && opts.RowTypeOID == 0 {
		return nil, rberrors.ConfigError("postgres source needs a table or a row type OID", nil)
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, rberrors.New(rberrors.ErrCodeSourceUnavailable, "failed to connect to postgres", err)
	}
	return &Source{conn: conn, opts: opts, relation: opts.Table}, nil
}

// Relation returns the resolved relation name, or the configured table
// before Columns has run.
func (s *Source) Relation() string { return s.relation }

// Format implements source.Source. Rows are fetched in binary except for
// columns the projector never decodes.
func (s *Source) Format() int16 { return pgtype.BinaryFormatCode }

// Columns resolves the relation and reads its attributes, dropped ones
// included, in attribute number order.
func (s *Source) Columns(ctx context.Context) ([]catalog.Column, error) {
	if err := s.resolve(ctx); err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, columnsQuery, s.relOID)
	if err != nil {
		return nil, rberrors.New(rberrors.ErrCodeSourceUnavailable, "failed to read pg_attribute", err)
	}
	defer rows.Close()

	var cols []catalog.Column
	for rows.Next() {
		var c catalog.Column
		if err := rows.Scan(&c.Name, &c.TypeOID, &c.TypeMod, &c.Dropped); err != nil {
			return nil, fmt.Errorf("scan pg_attribute row: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, rberrors.New(rberrors.ErrCodeSourceUnavailable, "failed to read pg_attribute", err)
	}
	return cols, nil
}

func (s *Source) resolve(ctx context.Context) error {
	var (
		row  pgx.Row
		what string
	)
	if s.opts.RowTypeOID != 0 {
		row = s.conn.QueryRow(ctx, `
SELECT c.oid, c.oid::regclass::text
FROM pg_catalog.pg_type t JOIN pg_catalog.pg_class c ON c.oid = t.typrelid
WHERE t.oid = $1`, s.opts.RowTypeOID)
		what = fmt.Sprintf("row type %d", s.opts.RowTypeOID)
	} else {
		row = s.conn.QueryRow(ctx, `SELECT $1::text::regclass::oid, $1::text::regclass::text`, s.opts.Table)
		what = fmt.Sprintf("table %q", s.opts.Table)
	}

	if err := row.Scan(&s.relOID, &s.relation); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rberrors.SchemaInconsistency(what+" is not a composite type of a relation", nil)
		}
		return rberrors.New(rberrors.ErrCodeSourceUnavailable, "failed to resolve "+what, err)
	}
	return nil
}

// Rows scans the relation in physical order. Values are positioned by
// catalog attribute; dropped columns are not selected and stay nil.
func (s *Source) Rows(ctx context.Context, cat *catalog.Catalog) (source.RowIterator, error) {
	if s.relOID == 0 {
		if err := s.resolve(ctx); err != nil {
			return nil, err
		}
	}

	query, positions := selectQuery(s.relation, cat)
	args := []any{pgx.QueryResultFormats(resultFormats(cat))}
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, rberrors.New(rberrors.ErrCodeSourceUnavailable, "failed to start scan of "+s.relation, err)
	}
	return &rowIterator{rows: rows, width: cat.Len(), positions: positions}, nil
}

// Close closes the connection.
func (s *Source) Close() error {
	return s.conn.Close(context.Background())
}

// selectQuery returns the scan statement and, for each selected value after
// the ctid, its catalog position.
func selectQuery(relation string, cat *catalog.Catalog) (string, []int) {
	var b strings.Builder
	b.WriteString("SELECT ctid::text")
	positions := make([]int, 0, cat.Live())
	for i, attr := range cat.Attributes() {
		if attr.Dropped {
			continue
		}
		b.WriteString(", ")
		b.WriteString(pgx.Identifier{attr.Name}.Sanitize())
		positions = append(positions, i)
	}
	b.WriteString(" FROM ")
	b.WriteString(relation)
	return b.String(), positions
}

// resultFormats asks for binary values for every decodable column and text
// for the rest, which also covers types without a binary send function.
func resultFormats(cat *catalog.Catalog) []int16 {
	formats := []int16{pgtype.TextFormatCode}
	for _, attr := range cat.Attributes() {
		if attr.Dropped {
			continue
		}
		switch attr.Type.Class {
		case catalog.ClassScalar, catalog.ClassArray:
			formats = append(formats, pgtype.BinaryFormatCode)
		default:
			formats = append(formats, pgtype.TextFormatCode)
		}
	}
	return formats
}

type rowIterator struct {
	rows      pgx.Rows
	width     int
	positions []int
	current   source.Row
}

func (it *rowIterator) Next() bool {
	if !it.rows.Next() {
		return false
	}
	raw := it.rows.RawValues()
	values := make([][]byte, it.width)
	for i, pos := range it.positions {
		if v := raw[i+1]; v != nil {
			values[pos] = append([]byte{}, v...)
		}
	}
	it.current = source.Row{ID: string(raw[0]), Values: values}
	return true
}

func (it *rowIterator) Row() source.Row { return it.current }

func (it *rowIterator) Err() error {
	if err := it.rows.Err(); err != nil {
		return rberrors.New(rberrors.ErrCodeSourceUnavailable, "scan failed", err)
	}
	return nil
}

func (it *rowIterator) Close() { it.rows.Close() }
