package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/citesearch/provider"
	"github.com/mohammad-safakhou/citesearch/provider/models"
	"go.uber.org/zap"
)

const synthesizeSystemPrompt = `You are an assistant that answers client questions in detail using only the provided sources. Answer the query comprehensively and cite your sources using the numbers provided.

Instructions:
1. Provide your response in two sections:
   - A clear, concise answer that summarizes the key points
   - A detailed reasoning section that explains the answer with specific citations
2. Use numbered citations in square brackets (e.g., [1], [2])
3. Ensure all claims are supported by citations
4. Use the exact format shown below

Your response should be in the following format:

<answer>
[Direct, clear answer to the query with inline citations]
</answer>

<reasoning>
[Detailed explanation with specific citations to sources]
</reasoning>`

var (
	answerPattern    = regexp.MustCompile(`(?s)<answer>(.*?)</answer>`)
	reasoningPattern = regexp.MustCompile(`(?s)<reasoning>(.*?)</reasoning>`)
)

// Synthesizer produces a cited answer from the deduplicated documents.
type Synthesizer struct {
	gen         provider.TextGenerator
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewSynthesizer(gen provider.TextGenerator, opts Options, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{
		gen:         gen,
		model:       opts.SynthesisModel,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		logger:      logger,
	}
}

// Synthesize answers query from docs. The sources are returned even when
// generation fails, in which case the answer and reasoning are empty.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, docs []Document) Answer {
	contextBlock, sources := BuildContext(docs)
	reply := generate(ctx, s.gen, s.logger, "synthesis", models.GenerateRequest{
		SystemPrompt: synthesizeSystemPrompt,
		UserPrompt:   fmt.Sprintf("Query: %s\n\nSources:\n%s", query, contextBlock),
		Model:        s.model,
		MaxTokens:    s.maxTokens,
		Temperature:  s.temperature,
	})
	return Answer{Content: ParseReply(reply), Sources: sources}
}

// BuildContext numbers every document that has both a title and an excerpt
// from 1 and renders the citation-labelled context. Other documents are
// left out of both results.
func BuildContext(docs []Document) (string, []Source) {
	sources := []Source{}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Title == "" || d.Excerpt == "" {
			continue
		}
		id := len(sources) + 1
		sources = append(sources, Source{ID: id, Title: d.Title, URL: d.URL, Excerpt: d.Excerpt})
		parts = append(parts, fmt.Sprintf("[%d] %s\nURL: %s\nExcerpt: %s\n", id, d.Title, d.URL, d.Excerpt))
	}
	return strings.Join(parts, "\n"), sources
}

// ParseReply extracts the first answer and reasoning blocks. A missing block
// becomes an empty string.
func ParseReply(reply string) Content {
	return Content{
		Answer:    firstGroup(answerPattern, reply),
		Reasoning: firstGroup(reasoningPattern, reply),
	}
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
