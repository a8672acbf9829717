package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/citesearch/internal/helpers"
	"github.com/mohammad-safakhou/citesearch/tools/web_search"
	"github.com/mohammad-safakhou/citesearch/tools/web_search/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Retriever runs one document search per sub-query.
type Retriever struct {
	searcher     web_search.Searcher
	locale       string
	sortCriteria string
	k            int
	logger       *zap.Logger
}

func NewRetriever(searcher web_search.Searcher, opts Options, logger *zap.Logger) *Retriever {
	return &Retriever{
		searcher:     searcher,
		locale:       opts.Locale,
		sortCriteria: opts.SortCriteria,
		k:            opts.ResultsPerQuery,
		logger:       logger,
	}
}

// Retrieve returns the top k documents for subQuery ordered by relevance.
// Search failures yield an empty list.
func (r *Retriever) Retrieve(ctx context.Context, subQuery string) []Document {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.retrieve", trace.WithAttributes(attribute.String("sub_query", subQuery)))
	defer span.End()

	if r.searcher == nil {
		return []Document{}
	}
	results, err := r.searcher.Search(ctx, models.Request{
		Query:           subQuery,
		Locale:          r.locale,
		NumberOfResults: r.k,
		SortCriteria:    r.sortCriteria,
	})
	if err != nil {
		recordCapabilityFailure(ctx, "retrieval")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("document search failed", zap.String("sub_query", subQuery), zap.Error(err))
		return []Document{}
	}

	sort.SliceStable(results, func(i, j int) bool { return rankOf(results[i]) < rankOf(results[j]) })
	if r.k > 0 && len(results) > r.k {
		results = results[:r.k]
	}
	docs := make([]Document, 0, len(results))
	for _, res := range results {
		url := strings.TrimSpace(res.URL)
		docs = append(docs, Document{
			IdentityKey: helpers.IdentityKey(url),
			Title:       strings.TrimSpace(res.Title),
			Excerpt:     strings.TrimSpace(res.Excerpt),
			URL:         url,
		})
	}
	span.SetAttributes(attribute.Int("documents", len(docs)))
	return docs
}

// unranked hits keep provider order behind ranked ones
func rankOf(r models.Result) int {
	if r.Rank <= 0 {
		return int(^uint(0) >> 1)
	}
	return r.Rank
}
