package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/leohooho/blog/internal/storage"
)

// ErrNoFrontMatter is returned for Markdown files without a +++ block.
var ErrNoFrontMatter = errors.New("missing +++ front matter")

// Store is the part of the post store the worker writes to.
type Store interface {
	Get(ctx context.Context, id string) (*storage.Post, error)
	Upsert(ctx context.Context, p *storage.Post) error
}

// Indexer keeps the search index in step with imported posts.
type Indexer interface {
	IndexPost(p *storage.Post) error
}

// Worker imports posts/*.md files into the post store
type Worker struct {
	dir         string
	db          Store
	index       Indexer
	concurrency int
}

// NewWorker creates a new import worker for the Markdown files in dir
func NewWorker(dir string, db Store, index Indexer) *Worker {
	return &Worker{
		dir:         dir,
		db:          db,
		index:       index,
		concurrency: 5,
	}
}

// Stats holds import statistics
type Stats struct {
	TotalPosts   int
	NewPosts     int
	UpdatedPosts int
	SkippedPosts int
	Errors       int
	Duration     time.Duration
}

type frontMatter struct {
	Title string `toml:"title"`
}

// ParseFile reads a post from a Markdown file. The slug is the file name
// without .md, the title comes from a TOML block between two +++ lines.
func ParseFile(path string) (*storage.Post, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	sep := []byte("+++")
	if bytes.Count(b, sep) < 2 {
		return nil, ErrNoFrontMatter
	}

	i := bytes.Index(b, sep)
	j := bytes.Index(b[i+3:], sep) + i + 3

	var fm frontMatter
	if err := toml.Unmarshal(b[i+3:j], &fm); err != nil {
		return nil, fmt.Errorf("decode front matter: %w", err)
	}

	return &storage.Post{
		ID:      strings.TrimSuffix(filepath.Base(path), ".md"),
		Title:   fm.Title,
		Content: strings.TrimLeft(string(b[j+3:]), "\r\n"),
	}, nil
}

// Sync imports every Markdown file in the directory
func (w *Worker) Sync(ctx context.Context) (*Stats, error) {
	startTime := time.Now()
	stats := &Stats{}

	files, err := filepath.Glob(filepath.Join(w.dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	stats.TotalPosts = len(files)

	fileChan := make(chan string, len(files))
	for _, f := range files {
		fileChan <- f
	}
	close(fileChan)

	var wg sync.WaitGroup
	var mu sync.Mutex

	for range w.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range fileChan {
				if err := w.syncFile(ctx, file, stats, &mu); err != nil {
					log.Warn().Err(err).Str("file", file).Msg("failed to import post")
					mu.Lock()
					stats.Errors++
					mu.Unlock()
				}
			}
		}()
	}

	wg.Wait()

	stats.Duration = time.Since(startTime)
	log.Info().
		Int("new", stats.NewPosts).
		Int("updated", stats.UpdatedPosts).
		Int("skipped", stats.SkippedPosts).
		Int("errors", stats.Errors).
		Dur("duration", stats.Duration).
		Msg("import complete")

	return stats, ctx.Err()
}

func (w *Worker) syncFile(ctx context.Context, file string, stats *Stats, mu *sync.Mutex) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	post, err := ParseFile(file)
	if err != nil {
		return err
	}

	existing, err := w.db.Get(ctx, post.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("get post: %w", err)
	}

	if existing != nil && existing.Title == post.Title && existing.Content == post.Content {
		mu.Lock()
		stats.SkippedPosts++
		mu.Unlock()
		return nil
	}

	if err := w.db.Upsert(ctx, post); err != nil {
		return err
	}

	if err := w.index.IndexPost(post); err != nil {
		return fmt.Errorf("index post: %w", err)
	}

	mu.Lock()
	if existing == nil {
		stats.NewPosts++
	} else {
		stats.UpdatedPosts++
	}
	mu.Unlock()

	log.Debug().Str("slug", post.ID).Msg("imported post")
	return nil
}

// Watch runs Sync whenever a Markdown file in the directory changes, until
// ctx is done. Bursts of events within debounce trigger one run.
func (w *Worker) Watch(ctx context.Context, debounce time.Duration, onSync func(*Stats, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to build post watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch post directory: %w", err)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(e.Name) != ".md" {
				continue
			}
			log.Debug().Str("file", e.Name).Str("event", e.Op.String()).Msg("post file event")
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("post watcher error")
		case <-timer.C:
			stats, err := w.Sync(ctx)
			if onSync != nil {
				onSync(stats, err)
			}
		}
	}
}
