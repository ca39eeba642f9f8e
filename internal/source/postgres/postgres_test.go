package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rowbulk/internal/catalog"
	"github.com/Aman-CERP/rowbulk/internal/projector"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Column{
		{Name: "c1", TypeOID: pgtype.TextOID},
		{Name: "........pg.dropped.2........", TypeOID: 0, Dropped: true},
		{Name: "Mixed Case", TypeOID: pgtype.Int4OID},
		{Name: "geom", TypeOID: 17001},
		{Name: "c5", TypeOID: pgtype.Float8ArrayOID},
	})
	require.NoError(t, err)
	return cat
}

func TestSelectQuery(t *testing.T) {
	query, positions := selectQuery(`public."Orders"`, testCatalog(t))

	assert.Equal(t, `SELECT ctid::text, "c1", "Mixed Case", "geom", "c5" FROM public."Orders"`, query)
	assert.Equal(t, []int{0, 2, 3, 4}, positions)
}

func TestResultFormats(t *testing.T) {
	formats := resultFormats(testCatalog(t))

	assert.Equal(t, []int16{
		pgtype.TextFormatCode,   // ctid
		pgtype.BinaryFormatCode, // c1
		pgtype.BinaryFormatCode, // Mixed Case
		pgtype.TextFormatCode,   // geom (custom)
		pgtype.BinaryFormatCode, // c5
	}, formats)
}

func TestOpen_RequiresRelation(t *testing.T) {
	_, err := Open(context.Background(), "postgres://localhost/db", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table or a row type OID")
}

// TestSource_Live runs against a real server when ROWBULK_TEST_POSTGRES_DSN
// is set.
func TestSource_Live(t *testing.T) {
	dsn := os.Getenv("ROWBULK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ROWBULK_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	setup, err := Open(ctx, dsn, Options{Table: "pg_catalog.pg_class"})
	require.NoError(t, err)
	_, err = setup.conn.Exec(ctx, `
DROP TABLE IF EXISTS rowbulk_live;
CREATE TABLE rowbulk_live (c1 text, gone int, c2 int4, c3 float8);
ALTER TABLE rowbulk_live DROP COLUMN gone;
INSERT INTO rowbulk_live VALUES ('a', 1, 3.5), ('b', 2, NULL);`)
	require.NoError(t, err)
	require.NoError(t, setup.Close())

	src, err := Open(ctx, dsn, Options{Table: "rowbulk_live"})
	require.NoError(t, err)
	defer src.Close()

	cols, err := src.Columns(ctx)
	require.NoError(t, err)
	require.Len(t, cols, 4)
	assert.True(t, cols[1].Dropped)

	cat, err := catalog.New(cols, catalog.WithRelation(src.Relation()))
	require.NoError(t, err)
	proj := projector.New(cat, projector.WithFormat(src.Format()))

	it, err := src.Rows(ctx, cat)
	require.NoError(t, err)
	defer it.Close()

	var docs []string
	for it.Next() {
		doc, err := proj.Project(it.Row().Values)
		require.NoError(t, err)
		body, err := doc.MarshalJSON()
		require.NoError(t, err)
		docs = append(docs, string(body))
	}
	require.NoError(t, it.Err())
	assert.ElementsMatch(t, []string{`{"c1":"a","c2":1,"c3":3.5}`, `{"c1":"b","c2":2}`}, docs)
}
