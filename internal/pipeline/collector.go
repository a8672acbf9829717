package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Collector fans retrieval out over all sub-queries and merges the results.
type Collector struct {
	retriever  *Retriever
	maxWorkers int
	logger     *zap.Logger
}

func NewCollector(retriever *Retriever, opts Options, logger *zap.Logger) *Collector {
	return &Collector{retriever: retriever, maxWorkers: opts.MaxSubQueries, logger: logger}
}

// Collect retrieves every sub-query concurrently and waits for all of them.
// A failed sub-query contributes no documents; the stage itself never fails.
// Per-query progress is reported as each retrieval finishes.
func (c *Collector) Collect(ctx context.Context, subQueries []string, report Reporter) Collection {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.collect", trace.WithAttributes(attribute.Int("sub_queries", len(subQueries))))
	defer span.End()

	perQuery := make([]QueryResults, len(subQueries))
	if len(subQueries) > 0 {
		workers := len(subQueries)
		if c.maxWorkers > 0 {
			workers = min(workers, c.maxWorkers)
		}
		panics := make([]any, len(subQueries))
		var g errgroup.Group
		g.SetLimit(workers)
		for i, q := range subQueries {
			g.Go(func() error {
				defer func() {
					if rec := recover(); rec != nil {
						panics[i] = rec
					}
				}()
				docs := c.retriever.Retrieve(ctx, q)
				perQuery[i] = QueryResults{SubQuery: q, Documents: docs}
				report.emit(StepQueryResults, fmt.Sprintf("Query: %s\nResults found: %d", q, len(docs)))
				return nil
			})
		}
		_ = g.Wait()
		for _, rec := range panics {
			if rec != nil {
				panic(rec)
			}
		}
	}

	docs, duplicates := Dedupe(perQuery)
	total := 0
	for _, q := range perQuery {
		total += len(q.Documents)
	}
	for _, d := range duplicates {
		c.logger.Debug("duplicate document skipped", zap.String("url", d.URL))
		report.emit(StepDuplicate, "Duplicate URL: "+d.URL)
	}
	recordRetrieval(ctx, total, len(duplicates))
	report.emit(StepDedupeDone, fmt.Sprintf("Total unique documents: %d", len(docs)))
	span.SetAttributes(attribute.Int("documents", len(docs)), attribute.Int("duplicates", len(duplicates)))

	return Collection{PerQuery: perQuery, Documents: docs, Duplicates: len(duplicates)}
}

// Dedupe merges per-query results in list order, keeping the first document
// seen for each identity key. Documents with an empty key are always kept.
// The dropped repeats are returned in the order they were encountered.
func Dedupe(perQuery []QueryResults) (unique, duplicates []Document) {
	unique = []Document{}
	seen := make(map[string]struct{})
	for _, q := range perQuery {
		for _, d := range q.Documents {
			if d.IdentityKey == "" {
				unique = append(unique, d)
				continue
			}
			if _, ok := seen[d.IdentityKey]; ok {
				duplicates = append(duplicates, d)
				continue
			}
			seen[d.IdentityKey] = struct{}{}
			unique = append(unique, d)
		}
	}
	return unique, duplicates
}
