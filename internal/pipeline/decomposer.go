package pipeline

import (
	"context"
	"strings"

	"github.com/mohammad-safakhou/citesearch/provider"
	"github.com/mohammad-safakhou/citesearch/provider/models"
	"go.uber.org/zap"
)

const decomposeSystemPrompt = "You are a research assistant that plans document searches."

const decomposePromptTemplate = `Given the user's query, break it down into several specific questions that cover all aspects of the topic. Ensure the sub-queries are concise, non-overlapping, and collectively comprehensive.
Format each sub-query on a new line.
Query: `

// Decomposer splits a query into at most MaxSubQueries sub-queries.
type Decomposer struct {
	gen         provider.TextGenerator
	model       string
	maxTokens   int
	temperature float64
	max         int
	logger      *zap.Logger
}

func NewDecomposer(gen provider.TextGenerator, opts Options, logger *zap.Logger) *Decomposer {
	return &Decomposer{
		gen:         gen,
		model:       opts.DecompositionModel,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		max:         opts.MaxSubQueries,
		logger:      logger,
	}
}

// Decompose returns the sub-queries for query. A failed or empty generation
// yields an empty list.
func (d *Decomposer) Decompose(ctx context.Context, query string) []string {
	reply := generate(ctx, d.gen, d.logger, "decomposition", models.GenerateRequest{
		SystemPrompt: decomposeSystemPrompt,
		UserPrompt:   decomposePromptTemplate + query,
		Model:        d.model,
		MaxTokens:    d.maxTokens,
		Temperature:  d.temperature,
	})
	return SplitSubQueries(reply, d.max)
}

// SplitSubQueries keeps the first max non-blank trimmed lines of reply.
func SplitSubQueries(reply string, max int) []string {
	out := []string{}
	for _, line := range strings.Split(reply, "\n") {
		if max > 0 && len(out) == max {
			break
		}
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
