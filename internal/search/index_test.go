package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leohooho/blog/internal/storage"
)

type fakeLister []*storage.Post

func (f fakeLister) List(context.Context) ([]*storage.Post, error) { return f, nil }

func openMem(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func ids(results []*SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.ID)
	}
	return out
}

func TestSearchFindsIndexedPost(t *testing.T) {
	idx := openMem(t)
	require.NoError(t, idx.IndexPost(&storage.Post{ID: "go-tips", Title: "Go tips", Content: "goroutines and channels"}))
	require.NoError(t, idx.IndexPost(&storage.Post{ID: "cooking", Title: "Cooking", Content: "pasta recipes"}))

	results, err := idx.Search("channels", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"go-tips"}, ids(results))
	assert.Equal(t, "Go tips", results[0].Title)
}

func TestReplaceMovesPostToNewID(t *testing.T) {
	idx := openMem(t)
	require.NoError(t, idx.IndexPost(&storage.Post{ID: "old", Title: "Draft", Content: "unicorns"}))

	require.NoError(t, idx.Replace("old", &storage.Post{ID: "new", Title: "Final", Content: "unicorns"}))

	results, err := idx.Search("unicorns", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids(results))

	n, err := idx.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDelete(t *testing.T) {
	idx := openMem(t)
	require.NoError(t, idx.IndexPost(&storage.Post{ID: "a", Title: "A", Content: "zebra"}))
	require.NoError(t, idx.Delete("a"))

	results, err := idx.Search("zebra", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRebuildDropsStaleEntries(t *testing.T) {
	idx := openMem(t)
	require.NoError(t, idx.IndexPost(&storage.Post{ID: "stale", Title: "Stale", Content: "old"}))

	var calls int
	err := idx.Rebuild(context.Background(), fakeLister{
		{ID: "one", Title: "One", Content: "first"},
		{ID: "two", Title: "Two", Content: "second"},
	}, func(current, total int) {
		calls++
		assert.Equal(t, 2, total)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	n, err := idx.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
