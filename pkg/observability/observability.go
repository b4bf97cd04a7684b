// Package observability instruments claim processing with OpenTelemetry
// spans and RED metrics plus slog logging. The library registers against the
// otel API only; the embedding process installs providers and exporters.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const scope = "github.com/Mindburn-Labs/claimvm/core"

// Telemetry carries the tracer, instruments, and logger shared by a
// processing pipeline. A nil *Telemetry is valid and records nothing.
type Telemetry struct {
	tracer trace.Tracer
	logger *slog.Logger

	processedCounter metric.Int64Counter
	failureCounter   metric.Int64Counter
	durationHist     metric.Float64Histogram
}

// New builds a Telemetry against the globally installed otel providers.
func New(logger *slog.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	meter := otel.Meter(scope)

	processed, err := meter.Int64Counter("claimvm.claims.processed",
		metric.WithDescription("Claims processed, by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create processed counter: %w", err)
	}
	failures, err := meter.Int64Counter("claimvm.claims.failures",
		metric.WithDescription("Claim processing failures, by fault kind"))
	if err != nil {
		return nil, fmt.Errorf("create failure counter: %w", err)
	}
	duration, err := meter.Float64Histogram("claimvm.claims.duration_ms",
		metric.WithDescription("Claim processing duration in milliseconds"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return &Telemetry{
		tracer:           otel.Tracer(scope),
		logger:           logger,
		processedCounter: processed,
		failureCounter:   failures,
		durationHist:     duration,
	}, nil
}

// Logger returns the configured logger, or a discard logger.
func (t *Telemetry) Logger() *slog.Logger {
	if t == nil || t.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t.logger
}

// StartSpan opens a span for one pipeline stage.
func (t *Telemetry) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if t == nil {
		return noop.NewTracerProvider().Tracer(scope).Start(ctx, name)
	}
	return t.tracer.Start(ctx, name)
}

// RecordOutcome records one processed claim: duration, success/failure, and
// the fault kind on failure.
func (t *Telemetry) RecordOutcome(ctx context.Context, provider string, elapsed time.Duration, faultKind string) {
	if t == nil {
		return
	}
	outcome := "ok"
	if faultKind != "" {
		outcome = "error"
		t.failureCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("fault.kind", faultKind),
			attribute.String("claim.provider", provider),
		))
	}
	t.processedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("claim.provider", provider),
	))
	t.durationHist.Record(ctx, float64(elapsed.Microseconds())/1000.0, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
