// Package local serves search results from an in-memory BM25 index over a
// JSON corpus, for offline runs and tests.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/mohammad-safakhou/citesearch/tools/web_search/models"
)

// Document is one corpus entry.
type Document struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
}

type Search struct {
	index bleve.Index
	docs  map[string]Document
}

// Load reads a JSON array of documents from path and indexes it.
func Load(path string) (*Search, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	return New(docs)
}

func New(docs []Document) (*Search, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	s := &Search{index: index, docs: make(map[string]Document, len(docs))}
	batch := index.NewBatch()
	for i, d := range docs {
		id := strconv.Itoa(i)
		s.docs[id] = d
		if err := batch.Index(id, d); err != nil {
			return nil, err
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Search) Search(ctx context.Context, req models.Request) ([]models.Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}
	k := req.NumberOfResults
	if k <= 0 {
		k = 10
	}
	searchReq := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(req.Query), k, 0, false)
	res, err := s.index.SearchInContext(ctx, searchReq)
	if err != nil {
		return nil, err
	}
	out := make([]models.Result, 0, len(res.Hits))
	for i, hit := range res.Hits {
		d, ok := s.docs[hit.ID]
		if !ok {
			continue
		}
		out = append(out, models.Result{Title: d.Title, URL: d.URL, Excerpt: d.Excerpt, Rank: i + 1})
	}
	return out, nil
}
