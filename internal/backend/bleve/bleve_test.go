package bleve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rowbulk/internal/bulk"
)

func sampleUnits() []bulk.Unit {
	return []bulk.Unit{
		{RowID: "(0,1)", Body: []byte(`{"c1":"alpha","c2":1,"c3":3.5}`)},
		{RowID: "(0,2)", Body: []byte(`{"c1":"bravo","c2":2}`)},
	}
}

func TestBulk_InMemory(t *testing.T) {
	b, err := New("")
	require.NoError(t, err)
	defer b.Close()

	resp, err := b.Bulk(context.Background(), "docs", sampleUnits())
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	for _, item := range resp.Items {
		assert.True(t, item.OK())
		assert.NotEmpty(t, item.ID)
	}
	assert.NotEqual(t, resp.Items[0].ID, resp.Items[1].ID)

	count, err := b.Count("docs")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	rows, err := b.Search(context.Background(), "docs", "bravo", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"(0,2)"}, rows)
}

func TestBulk_InvalidBodyFailsItemOnly(t *testing.T) {
	b, err := New("")
	require.NoError(t, err)
	defer b.Close()

	units := append(sampleUnits(), bulk.Unit{RowID: "(0,3)", Body: []byte(`not json`)})
	resp, err := b.Bulk(context.Background(), "docs", units)
	require.NoError(t, err)
	require.Len(t, resp.Items, 3)
	assert.True(t, resp.Items[0].OK())
	assert.True(t, resp.Items[1].OK())
	assert.False(t, resp.Items[2].OK())
	assert.Contains(t, resp.Items[2].Error, "invalid document")

	count, err := b.Count("docs")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestBulk_TargetsAreSeparate(t *testing.T) {
	b, err := New("")
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Bulk(context.Background(), "a", sampleUnits())
	require.NoError(t, err)

	count, err := b.Count("b")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBulk_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	b, err := New(dir)
	require.NoError(t, err)
	_, err = b.Bulk(context.Background(), "docs", sampleUnits())
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.DirExists(t, filepath.Join(dir, "docs.bleve"))

	b, err = New(dir)
	require.NoError(t, err)
	defer b.Close()
	count, err := b.Count("docs")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestBulk_RecreatesCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docs.bleve")
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte(`{"storage":`), 0644))

	b, err := New(dir)
	require.NoError(t, err)
	defer b.Close()

	resp, err := b.Bulk(context.Background(), "docs", sampleUnits())
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2)
}

func TestBulk_Errors(t *testing.T) {
	b, err := New("")
	require.NoError(t, err)

	_, err = b.Bulk(context.Background(), "../escape", sampleUnits())
	assert.ErrorContains(t, err, "invalid index name")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Bulk(ctx, "docs", sampleUnits())
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, b.Close())
	_, err = b.Bulk(context.Background(), "docs", sampleUnits())
	assert.ErrorContains(t, err, "closed")
	assert.NoError(t, b.Close())
}

func TestValidateIndexIntegrity(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, path string)
		wantErr string
	}{
		{name: "missing directory", setup: func(*testing.T, string) {}},
		{
			name:    "missing meta",
			setup:   func(t *testing.T, path string) { require.NoError(t, os.MkdirAll(path, 0755)) },
			wantErr: "missing",
		},
		{
			name: "empty meta",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.MkdirAll(path, 0755))
				require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), nil, 0644))
			},
			wantErr: "empty",
		},
		{
			name: "valid meta",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.MkdirAll(path, 0755))
				require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte(`{"storage":"scorch"}`), 0644))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "idx.bleve")
			tt.setup(t, path)
			err := validateIndexIntegrity(path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
