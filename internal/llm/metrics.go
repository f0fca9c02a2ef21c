package llm

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/llm"

var (
	tokensInHistogram  metric.Int64Histogram
	tokensOutHistogram metric.Int64Histogram
	metricsOnce        sync.Once
	metricsRegistered  bool
)

func initTokenMetrics() {
	meter := otel.Meter(meterName)
	var err error
	tokensInHistogram, err = meter.Int64Histogram(
		"chainsolve.copilot.tokens_in",
		metric.WithDescription("Input tokens per copilot model invocation"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return
	}
	tokensOutHistogram, err = meter.Int64Histogram(
		"chainsolve.copilot.tokens_out",
		metric.WithDescription("Output tokens per copilot model invocation"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return
	}
	metricsRegistered = true
}

// recordTokenMetrics records token usage after an invocation, including the
// repair round-trip when one occurred.
func recordTokenMetrics(ctx context.Context, provider, model string, tokensIn, tokensOut int, repaired bool) {
	metricsOnce.Do(initTokenMetrics)
	if !metricsRegistered {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Bool("repaired", repaired),
	)
	tokensInHistogram.Record(ctx, int64(tokensIn), attrs)
	tokensOutHistogram.Record(ctx, int64(tokensOut), attrs)
}
