package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/leohooho/blog/internal/storage"
)

// Index wraps a Bleve search index
type Index struct {
	index bleve.Index
}

// IndexedPost represents a post in the search index
type IndexedPost struct {
	ID      string
	Title   string
	Content string
}

// SearchResult represents a search result
type SearchResult struct {
	ID    string
	Title string
	Score float64
}

// Open opens or creates a Bleve index
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// OpenMem creates an index that lives only in memory.
func OpenMem() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = "en"

	idFieldMapping := bleve.NewKeywordFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ID", idFieldMapping)
	docMapping.AddFieldMappingsAt("Title", titleFieldMapping)
	docMapping.AddFieldMappingsAt("Content", bleve.NewTextFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexPost adds or updates a post in the index
func (i *Index) IndexPost(p *storage.Post) error {
	return i.index.Index(p.ID, &IndexedPost{ID: p.ID, Title: p.Title, Content: p.Content})
}

// Delete removes a post from the index
func (i *Index) Delete(id string) error {
	return i.index.Delete(id)
}

// Replace drops oldID from the index and stores p in its place, as one batch.
func (i *Index) Replace(oldID string, p *storage.Post) error {
	batch := i.index.NewBatch()
	if oldID != p.ID {
		batch.Delete(oldID)
	}
	if err := batch.Index(p.ID, &IndexedPost{ID: p.ID, Title: p.Title, Content: p.Content}); err != nil {
		return fmt.Errorf("batch index %s: %w", p.ID, err)
	}
	return i.index.Batch(batch)
}

// Search performs a query string search (quotes, boolean operators, fuzzy ~)
func (i *Index) Search(queryStr string, limit int) ([]*SearchResult, error) {
	query := bleve.NewQueryStringQuery(queryStr)

	search := bleve.NewSearchRequestOptions(query, limit, 0, false)
	search.Fields = []string{"Title"}

	results, err := i.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	searchResults := make([]*SearchResult, 0, len(results.Hits))
	for _, hit := range results.Hits {
		result := &SearchResult{
			ID:    hit.ID,
			Score: hit.Score,
		}
		if title, ok := hit.Fields["Title"].(string); ok {
			result.Title = title
		}
		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// Lister is the part of the post store Rebuild reads from.
type Lister interface {
	List(ctx context.Context) ([]*storage.Post, error)
}

// Rebuild indexes every stored post and drops index entries whose post is
// gone. progress may be nil.
func (i *Index) Rebuild(ctx context.Context, db Lister, progress func(current, total int)) error {
	posts, err := db.List(ctx)
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}

	keep := make(map[string]bool, len(posts))
	batch := i.index.NewBatch()
	for n, p := range posts {
		keep[p.ID] = true
		if err := batch.Index(p.ID, &IndexedPost{ID: p.ID, Title: p.Title, Content: p.Content}); err != nil {
			return fmt.Errorf("batch index %s: %w", p.ID, err)
		}
		if progress != nil {
			progress(n+1, len(posts))
		}
	}

	stale, err := i.ids()
	if err != nil {
		return err
	}
	for _, id := range stale {
		if !keep[id] {
			batch.Delete(id)
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	return nil
}

func (i *Index) ids() ([]string, error) {
	count, err := i.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("doc count: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("list indexed ids: %w", err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Count returns the number of posts in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}
