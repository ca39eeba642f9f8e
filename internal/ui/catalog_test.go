package ui

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rowbulk/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Column{
		{Name: "id", TypeOID: 23, TypeMod: -1},
		{Name: "gone", TypeOID: 25, TypeMod: -1, Dropped: true},
		{Name: "title", TypeOID: 25, TypeMod: -1},
		{Name: "shape", TypeOID: catalog.FirstNormalOID + 5, TypeMod: -1},
	}, catalog.WithRelation("public.orders"))
	require.NoError(t, err)
	return cat
}

func TestNewCatalogInfo(t *testing.T) {
	info := NewCatalogInfo(testCatalog(t))

	assert.Equal(t, "public.orders", info.Relation)
	assert.Equal(t, 3, info.Live)
	require.Len(t, info.Columns, 4)
	assert.Equal(t, ColumnInfo{Position: 1, Name: "id", Type: "int32", TypeOID: 23, TypeMod: -1}, info.Columns[0])
	assert.True(t, info.Columns[1].Dropped)
	assert.Empty(t, info.Columns[1].Name)
	assert.Equal(t, "custom", info.Columns[3].Type)
}

func TestCatalogRenderer_Render(t *testing.T) {
	// Given: a no-color renderer
	buf := &bytes.Buffer{}
	r := NewCatalogRenderer(buf, true)

	// When: rendering a catalog with a dropped column
	require.NoError(t, r.Render(NewCatalogInfo(testCatalog(t))))

	// Then: every position is listed and the summary counts live columns
	out := buf.String()
	assert.Contains(t, out, "Catalog: public.orders")
	assert.Contains(t, out, "(dropped)")
	assert.Contains(t, out, "title")
	assert.Contains(t, out, "3 live of 4 columns")
	assert.NotContains(t, out, "\x1b[")
}

func TestCatalogRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewCatalogRenderer(buf, true)

	require.NoError(t, r.RenderJSON(NewCatalogInfo(testCatalog(t))))

	var decoded CatalogInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "public.orders", decoded.Relation)
	assert.Len(t, decoded.Columns, 4)
	assert.Equal(t, "title", decoded.Columns[2].Name)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}
