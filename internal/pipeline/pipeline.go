// Package pipeline answers a query in three strictly sequential stages:
// decomposition into sub-queries, concurrent retrieval with deduplication,
// and cited synthesis. Progress is published per session as it happens.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/citesearch/config"
	"github.com/mohammad-safakhou/citesearch/internal/events"
	"github.com/mohammad-safakhou/citesearch/provider"
	"github.com/mohammad-safakhou/citesearch/tools/web_search"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var pipelineTracer trace.Tracer = otel.Tracer("citesearch/internal/pipeline")

// Options are the static tunables of a pipeline.
type Options struct {
	DecompositionModel string
	SynthesisModel     string
	MaxTokens          int
	Temperature        float64
	MaxSubQueries      int
	ResultsPerQuery    int
	Locale             string
	SortCriteria       string
}

// OptionsFromConfig maps the llm, search and pipeline sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DecompositionModel: cfg.LLM.Routing.Decomposition,
		SynthesisModel:     cfg.LLM.Routing.Synthesis,
		MaxTokens:          cfg.LLM.MaxTokens,
		Temperature:        cfg.LLM.Temperature,
		MaxSubQueries:      cfg.Pipeline.MaxSubQueries,
		ResultsPerQuery:    cfg.Pipeline.ResultsPerQuery,
		Locale:             cfg.Search.Locale,
		SortCriteria:       cfg.Search.SortCriteria,
	}
}

// Sessions creates the event sink for a session on first touch.
type Sessions interface {
	Ensure(sessionID string)
}

// Deps are the collaborators of a pipeline. Sessions may be nil.
type Deps struct {
	Generator provider.TextGenerator
	Searcher  web_search.Searcher
	Publisher events.Publisher
	Sessions  Sessions
	Logger    *zap.Logger
}

// Pipeline sequences Decomposer, Collector and Synthesizer.
type Pipeline struct {
	decomposer  *Decomposer
	collector   *Collector
	synthesizer *Synthesizer
	publisher   events.Publisher
	sessions    Sessions
	logger      *zap.Logger
}

func New(deps Deps, opts Options) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("pipeline")
	return &Pipeline{
		decomposer:  NewDecomposer(deps.Generator, opts, logger),
		collector:   NewCollector(NewRetriever(deps.Searcher, opts, logger), opts, logger),
		synthesizer: NewSynthesizer(deps.Generator, opts, logger),
		publisher:   deps.Publisher,
		sessions:    deps.Sessions,
		logger:      logger,
	}
}

// run tracks the state of one invocation.
type run struct {
	p         *Pipeline
	sessionID string
	logger    *zap.Logger
	stage     Stage
	entered   time.Time
}

func (r *run) report(step string, details ...string) {
	ev := events.Log(step, details...)
	r.logger.Info(step, zap.String("details", ev.DetailsOrEmpty()))
	if r.p.publisher != nil {
		r.p.publisher.Publish(r.sessionID, ev)
	}
}

func (r *run) enter(ctx context.Context, next Stage) {
	now := time.Now()
	if r.stage != StageCreated {
		recordStage(ctx, r.stage, now.Sub(r.entered).Seconds())
	}
	r.logger.Debug("stage transition", zap.String("from", string(r.stage)), zap.String("to", string(next)))
	r.stage, r.entered = next, now
}

// Run answers query and publishes progress under sessionID. It returns a
// *ValidationError for blank input and a *FaultError if the run itself
// breaks; failing search or generation calls only degrade the answer.
func (p *Pipeline) Run(ctx context.Context, query, sessionID string) (answer Answer, err error) {
	if strings.TrimSpace(query) == "" {
		return Answer{}, &ValidationError{Err: ErrEmptyQuery}
	}
	if strings.TrimSpace(sessionID) == "" {
		return Answer{}, &ValidationError{Err: ErrMissingSession}
	}
	if p.sessions != nil {
		p.sessions.Ensure(sessionID)
	}

	ctx, span := pipelineTracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	r := &run{p: p, sessionID: sessionID, logger: p.logger.With(zap.String("session_id", sessionID)), stage: StageCreated}
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		cause, ok := rec.(error)
		if !ok {
			cause = fmt.Errorf("%v", rec)
		}
		fault := &FaultError{Stage: r.stage, Cause: cause}
		r.logger.Error("pipeline run failed", zap.String("stage", string(r.stage)), zap.Error(cause), zap.StackSkip("stack", 1))
		r.enter(ctx, StageErrored)
		r.report(StepError, "Processing error: "+cause.Error())
		span.RecordError(fault)
		span.SetStatus(codes.Error, fault.Error())
		recordRun(ctx, string(StageErrored))
		answer, err = Answer{}, fault
	}()

	r.enter(ctx, StageDecomposing)
	r.report(StepDecomposeStart, "Analyzing: "+query)
	subQueries := p.decompose(ctx, query)
	r.report(StepDecomposeDone, fmt.Sprintf("Generated %d sub-queries", len(subQueries)))
	r.report(StepSubQueries, subQueryDetails(subQueries))

	r.enter(ctx, StageRetrieving)
	r.report(StepSearchStart)
	collection := p.collect(ctx, subQueries, r.report)
	r.report(StepSearchDone, fmt.Sprintf("Found %d documents", len(collection.Documents)))

	r.enter(ctx, StageSynthesizing)
	r.report(StepSynthesizeStart)
	answer = p.synthesize(ctx, query, collection.Documents)
	r.report(StepSynthesizeDone, "Response ready")

	r.enter(ctx, StageDone)
	span.SetAttributes(attribute.Int("sources", len(answer.Sources)))
	recordRun(ctx, string(StageDone))
	return answer, nil
}

func (p *Pipeline) decompose(ctx context.Context, query string) []string {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.decompose")
	defer span.End()
	subQueries := p.decomposer.Decompose(ctx, query)
	span.SetAttributes(attribute.Int("sub_queries", len(subQueries)))
	return subQueries
}

func (p *Pipeline) collect(ctx context.Context, subQueries []string, report Reporter) Collection {
	return p.collector.Collect(ctx, subQueries, report)
}

func (p *Pipeline) synthesize(ctx context.Context, query string, docs []Document) Answer {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.synthesize", trace.WithAttributes(attribute.Int("documents", len(docs))))
	defer span.End()
	return p.synthesizer.Synthesize(ctx, query, docs)
}

// subQueryDetails renders sub-queries as a JSON array. Apostrophes are
// escaped so the text survives clients that swap single quotes for double
// quotes before parsing.
func subQueryDetails(subQueries []string) string {
	if subQueries == nil {
		subQueries = []string{}
	}
	b, err := json.Marshal(subQueries)
	if err != nil {
		return "[]"
	}
	return strings.ReplaceAll(string(b), "'", `\u0027`)
}
