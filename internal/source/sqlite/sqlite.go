// Package sqlite reads the schema and rows of a SQLite table, describing
// its columns with the same type OIDs a PostgreSQL catalog would use.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/rowbulk/internal/catalog"
	rberrors "github.com/Aman-CERP/rowbulk/internal/errors"
	"github.com/Aman-CERP/rowbulk/internal/source"
)

// Source reads one table of a SQLite database.
type Source struct {
	db    *sql.DB
	table string
}

var _ source.Source = (*Source)(nil)

// Open opens the database at dsn (a path or ":memory:").
func Open(ctx context.Context, dsn, table string) (*Source, error) {
	if table == "" {
		return nil, rberrors.ConfigError("sqlite source needs a table", nil)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, rberrors.New(rberrors.ErrCodeSourceUnavailable, "failed to open sqlite database", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, rberrors.New(rberrors.ErrCodeSourceUnavailable, "failed to open sqlite database", err)
	}
	return &Source{db: db, table: table}, nil
}

// Relation implements source.Source.
func (s *Source) Relation() string { return s.table }

// Format implements source.Source. Values are rendered as text.
func (s *Source) Format() int16 { return pgtype.TextFormatCode }

// Columns reads PRAGMA table_xinfo. SQLite has no dropped columns, so every
// entry is live; hidden virtual-table columns are skipped.
func (s *Source) Columns(ctx context.Context) ([]catalog.Column, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, type, hidden FROM pragma_table_xinfo(?)", s.table)
	if err != nil {
		return nil, rberrors.New(rberrors.ErrCodeSourceUnavailable, "failed to read table info", err)
	}
	defer rows.Close()

	var cols []catalog.Column
	for rows.Next() {
		var (
			name, declared string
			hidden         int
		)
		if err := rows.Scan(&name, &declared, &hidden); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		if hidden == 1 {
			continue
		}
		cols = append(cols, catalog.Column{Name: name, TypeOID: DeclaredTypeOID(declared), TypeMod: -1})
	}
	if err := rows.Err(); err != nil {
		return nil, rberrors.New(rberrors.ErrCodeSourceUnavailable, "failed to read table info", err)
	}
	if len(cols) == 0 {
		return nil, rberrors.SchemaInconsistency(fmt.Sprintf("table %q does not exist or has no columns", s.table), nil)
	}
	return cols, nil
}

// Rows scans the table in rowid order.
func (s *Source) Rows(ctx context.Context, cat *catalog.Catalog) (source.RowIterator, error) {
	rows, err := s.db.QueryContext(ctx, selectQuery(s.table, cat))
	if err != nil {
		return nil, rberrors.New(rberrors.ErrCodeSourceUnavailable, "failed to start scan of "+s.table, err)
	}
	return &rowIterator{rows: rows, cat: cat}, nil
}

// Close closes the database.
func (s *Source) Close() error { return s.db.Close() }

// DeclaredTypeOID maps a declared column type to the OID of the PostgreSQL
// type with the same document encoding. A trailing "[]" declares an array.
// Types outside the supported set map to the first custom OID.
func DeclaredTypeOID(declared string) uint32 {
	t := strings.ToUpper(strings.TrimSpace(declared))
	isArray := strings.HasSuffix(t, "[]")
	t = strings.TrimSpace(strings.TrimSuffix(t, "[]"))
	// VARCHAR(255), NUMERIC(10,2)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}

	var kind catalog.Kind
	switch t {
	case "INTEGER", "INT", "BIGINT", "INT8":
		kind = catalog.KindInt64
	case "SMALLINT", "INT2":
		kind = catalog.KindInt16
	case "MEDIUMINT", "INT4":
		kind = catalog.KindInt32
	case "REAL", "DOUBLE", "DOUBLE PRECISION", "FLOAT8":
		kind = catalog.KindFloat64
	case "FLOAT", "FLOAT4":
		kind = catalog.KindFloat32
	case "BOOLEAN", "BOOL":
		kind = catalog.KindBool
	case "JSON":
		kind = catalog.KindJSON
	case "JSONB":
		kind = catalog.KindJSONB
	case "TEXT", "VARCHAR", "CHAR", "CHARACTER", "CLOB", "NVARCHAR", "NCHAR":
		kind = catalog.KindText
	default:
		return catalog.FirstNormalOID
	}

	tag := catalog.Scalar(kind)
	if isArray {
		tag = catalog.Array(kind)
	}
	oid, _ := catalog.OIDForTag(tag)
	return oid
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func selectQuery(table string, cat *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString("SELECT rowid")
	for _, attr := range cat.Attributes() {
		b.WriteString(", ")
		b.WriteString(quoteIdent(attr.Name))
	}
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(table))
	b.WriteString(" ORDER BY rowid")
	return b.String()
}

type rowIterator struct {
	rows    *sql.Rows
	cat     *catalog.Catalog
	current source.Row
	err     error
}

func (it *rowIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}

	n := it.cat.Len()
	var rowid int64
	cells := make([]any, n)
	dest := make([]any, n+1)
	dest[0] = &rowid
	for i := range cells {
		dest[i+1] = &cells[i]
	}
	if err := it.rows.Scan(dest...); err != nil {
		it.err = fmt.Errorf("scan row: %w", err)
		return false
	}

	values := make([][]byte, n)
	for i, cell := range cells {
		values[i] = renderText(cell, it.cat.Attribute(i).Type)
	}
	it.current = source.Row{ID: strconv.FormatInt(rowid, 10), Values: values}
	return true
}

func (it *rowIterator) Row() source.Row { return it.current }

func (it *rowIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	if err := it.rows.Err(); err != nil {
		return rberrors.New(rberrors.ErrCodeSourceUnavailable, "scan failed", err)
	}
	return nil
}

func (it *rowIterator) Close() { _ = it.rows.Close() }

// renderText renders a SQLite value in PostgreSQL text format for its tag.
func renderText(v any, tag catalog.TypeTag) []byte {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		if tag == catalog.Scalar(catalog.KindBool) {
			if x != 0 {
				return []byte("t")
			}
			return []byte("f")
		}
		return strconv.AppendInt(nil, x, 10)
	case float64:
		return formatFloat(x)
	case bool:
		if x {
			return []byte("t")
		}
		return []byte("f")
	case string:
		return []byte(x)
	case []byte:
		return append([]byte{}, x...)
	case time.Time:
		return []byte(x.Format(time.RFC3339Nano))
	default:
		return []byte(fmt.Sprint(x))
	}
}

func formatFloat(f float64) []byte {
	switch {
	case math.IsNaN(f):
		return []byte("NaN")
	case math.IsInf(f, 1):
		return []byte("Infinity")
	case math.IsInf(f, -1):
		return []byte("-Infinity")
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64)
}
