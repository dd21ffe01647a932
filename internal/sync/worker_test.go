package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leohooho/blog/internal/search"
	"github.com/leohooho/blog/internal/storage"
)

func writePost(t *testing.T, dir, slug, title, body string) {
	t.Helper()
	content := "+++\ntitle = \"" + title + "\"\n+++\n" + body
	require.NoError(t, os.WriteFile(filepath.Join(dir, slug+".md"), []byte(content), 0o644))
}

func setup(t *testing.T) (string, *storage.DB, *search.Index) {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.Open(filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	idx, err := search.OpenMem()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	return dir, db, idx
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	writePost(t, dir, "hello-world", "Hello, World", "# Hi\n\nbody\n")

	p, err := ParseFile(filepath.Join(dir, "hello-world.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello-world", p.ID)
	assert.Equal(t, "Hello, World", p.Title)
	assert.Equal(t, "# Hi\n\nbody\n", p.Content)

	plain := filepath.Join(dir, "plain.md")
	require.NoError(t, os.WriteFile(plain, []byte("no front matter"), 0o644))
	_, err = ParseFile(plain)
	assert.ErrorIs(t, err, ErrNoFrontMatter)
}

func TestSync(t *testing.T) {
	dir, db, idx := setup(t)
	ctx := context.Background()

	writePost(t, dir, "one", "One", "first body")
	writePost(t, dir, "two", "Two", "second body")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.md"), []byte("oops"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	w := NewWorker(dir, db, idx)

	stats, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalPosts)
	assert.Equal(t, 2, stats.NewPosts)
	assert.Equal(t, 1, stats.Errors)

	p, err := db.Get(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, "second body", p.Content)

	n, err := idx.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	writePost(t, dir, "two", "Two", "second body, edited")
	stats, err = w.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NewPosts)
	assert.Equal(t, 1, stats.UpdatedPosts)
	assert.Equal(t, 1, stats.SkippedPosts)
}

func TestWatchImportsChangedFiles(t *testing.T) {
	dir, db, idx := setup(t)
	w := NewWorker(dir, db, idx)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	synced := make(chan *Stats, 10)
	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, 20*time.Millisecond, func(s *Stats, err error) {
			if err == nil {
				synced <- s
			}
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writePost(t, dir, "watched", "Watched", "body")

	// A run can land between the create and the write of the file, so wait
	// for the one that picked the post up.
	timeout := time.After(5 * time.Second)
	for imported := false; !imported; {
		select {
		case s := <-synced:
			imported = s.NewPosts == 1
		case <-timeout:
			t.Fatal("no sync after file change")
		}
	}

	_, err := db.Get(context.Background(), "watched")
	assert.NoError(t, err)

	cancel()
	assert.NoError(t, <-done)
}
