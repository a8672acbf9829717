package pipeline

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var (
	metricsOnce        sync.Once
	pipelineRuns       otelmetric.Int64Counter
	stageDuration      otelmetric.Float64Histogram
	retrievedDocuments otelmetric.Int64Counter
	duplicateDocuments otelmetric.Int64Counter
	capabilityFailures otelmetric.Int64Counter
)

func initMetrics() {
	meter := otel.Meter("citesearch/internal/pipeline")
	var err error
	pipelineRuns, err = meter.Int64Counter(
		"pipeline_runs_total",
		otelmetric.WithDescription("Pipeline runs by terminal status"),
	)
	if err != nil {
		zap.L().Warn("pipeline metrics init", zap.String("instrument", "pipeline_runs_total"), zap.Error(err))
	}
	stageDuration, err = meter.Float64Histogram(
		"pipeline_stage_duration_seconds",
		otelmetric.WithDescription("Wall time spent in each pipeline stage"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		zap.L().Warn("pipeline metrics init", zap.String("instrument", "pipeline_stage_duration_seconds"), zap.Error(err))
	}
	retrievedDocuments, err = meter.Int64Counter(
		"retrieval_documents_total",
		otelmetric.WithDescription("Documents returned by retrieval before deduplication"),
	)
	if err != nil {
		zap.L().Warn("pipeline metrics init", zap.String("instrument", "retrieval_documents_total"), zap.Error(err))
	}
	duplicateDocuments, err = meter.Int64Counter(
		"retrieval_duplicates_total",
		otelmetric.WithDescription("Documents dropped as duplicates across sub-queries"),
	)
	if err != nil {
		zap.L().Warn("pipeline metrics init", zap.String("instrument", "retrieval_duplicates_total"), zap.Error(err))
	}
	capabilityFailures, err = meter.Int64Counter(
		"capability_failures_total",
		otelmetric.WithDescription("Failed calls to the search or text generation capability"),
	)
	if err != nil {
		zap.L().Warn("pipeline metrics init", zap.String("instrument", "capability_failures_total"), zap.Error(err))
	}
}

func recordRun(ctx context.Context, status string) {
	metricsOnce.Do(initMetrics)
	if pipelineRuns != nil {
		pipelineRuns.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", status)))
	}
}

func recordStage(ctx context.Context, stage Stage, seconds float64) {
	metricsOnce.Do(initMetrics)
	if stageDuration != nil {
		stageDuration.Record(ctx, seconds, otelmetric.WithAttributes(attribute.String("stage", string(stage))))
	}
}

func recordRetrieval(ctx context.Context, documents, duplicates int) {
	metricsOnce.Do(initMetrics)
	if retrievedDocuments != nil && documents > 0 {
		retrievedDocuments.Add(ctx, int64(documents))
	}
	if duplicateDocuments != nil && duplicates > 0 {
		duplicateDocuments.Add(ctx, int64(duplicates))
	}
}

func recordCapabilityFailure(ctx context.Context, capability string) {
	metricsOnce.Do(initMetrics)
	if capabilityFailures != nil {
		capabilityFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("capability", capability)))
	}
}
