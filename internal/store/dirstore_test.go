package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDirStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "benzene")
	w := CreateDirStore(path, "benzene", "all-minilm")
	require.NoError(t, w.Add(context.Background(), "doc.pdf", 0,
		[]string{"苯是一種芳香烴", "苯的替代物包括二甲苯", "甲苯具有毒性"},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0.6, 0.8, 0}},
	))
	require.NoError(t, w.Close())
	return path
}

func TestDirStore_RoundTripAndSearch(t *testing.T) {
	path := buildDirStore(t)

	s, err := OpenDirStore(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	got, err := s.Search(context.Background(), []float32{0, 2, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "苯的替代物包括二甲苯", got[0].Text)
	assert.Equal(t, "甲苯具有毒性", got[1].Text)
}

func TestDirStore_KLargerThanCollection(t *testing.T) {
	s, err := OpenDirStore(buildDirStore(t))
	require.NoError(t, err)

	got, err := s.Search(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "苯是一種芳香烴", got[0].Text)
}

func TestDirStore_DimensionMismatch(t *testing.T) {
	s, err := OpenDirStore(buildDirStore(t))
	require.NoError(t, err)

	_, err = s.Search(context.Background(), []float32{1, 0}, 1)
	assert.Error(t, err)

	w := CreateDirStore(t.TempDir(), "x", "")
	require.NoError(t, w.Add(context.Background(), "a", 0, []string{"a"}, [][]float32{{1, 2}}))
	assert.Error(t, w.Add(context.Background(), "b", 0, []string{"b"}, [][]float32{{1, 2, 3}}))
}

func TestDirStore_ReadOnlyCloseLeavesFile(t *testing.T) {
	path := buildDirStore(t)
	before, err := os.Stat(filepath.Join(path, collectionFile))
	require.NoError(t, err)

	s, err := OpenDirStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	after, err := os.Stat(filepath.Join(path, collectionFile))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestOpenDirStore_Missing(t *testing.T) {
	_, err := OpenDirStore(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestDirStore_ChunkIDsContinueAcrossBatches(t *testing.T) {
	w := CreateDirStore(t.TempDir(), "benzene", "")
	ctx := context.Background()
	texts, vecs := batchOf(20)
	require.NoError(t, w.Add(ctx, "doc.pdf", 0, texts[:16], vecs[:16]))
	require.NoError(t, w.Add(ctx, "doc.pdf", 16, texts[16:], vecs[16:]))

	ids := make(map[string]bool)
	for _, e := range w.data.Entries {
		ids[e.ChunkID] = true
	}
	assert.Len(t, ids, 20)
	assert.Equal(t, "doc.pdf_chunk_16", w.data.Entries[16].ChunkID)
	assert.Equal(t, "doc.pdf_chunk_19", w.data.Entries[19].ChunkID)
}
