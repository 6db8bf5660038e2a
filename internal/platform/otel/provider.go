// Package otel configures OpenTelemetry tracing for the sheet commands.
package otel

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	envEnabled     = "CHARSHEET_OTEL_ENABLED"
	envEndpoint    = "CHARSHEET_OTEL_ENDPOINT"
	envSampleRatio = "CHARSHEET_OTEL_SAMPLE_RATIO"
)

type settings struct {
	endpoint    string
	sampleRatio float64
}

// settingsFromEnv reports whether tracing is on and with which settings.
func settingsFromEnv() (settings, bool, error) {
	if strings.EqualFold(strings.TrimSpace(os.Getenv(envEnabled)), "false") {
		return settings{}, false, nil
	}
	endpoint := strings.TrimSpace(os.Getenv(envEndpoint))
	if endpoint == "" {
		return settings{}, false, nil
	}
	s := settings{endpoint: endpoint, sampleRatio: 1}
	if raw := strings.TrimSpace(os.Getenv(envSampleRatio)); raw != "" {
		ratio, err := strconv.ParseFloat(raw, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			return settings{}, false, fmt.Errorf("%s must be a number in [0, 1], got %q", envSampleRatio, raw)
		}
		s.sampleRatio = ratio
	}
	return s, true, nil
}

func (s settings) sampler() sdktrace.Sampler {
	if s.sampleRatio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.sampleRatio))
}

// Setup initialises OpenTelemetry tracing for the given service.
//
// Tracing is opt-in: when CHARSHEET_OTEL_ENDPOINT is empty or
// CHARSHEET_OTEL_ENABLED is "false", Setup returns a no-op shutdown
// function and no global provider is registered. CHARSHEET_OTEL_SAMPLE_RATIO
// samples a fraction of root traces.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	s, enabled, err := settingsFromEnv()
	if err != nil {
		return noop, err
	}
	if !enabled {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(s.endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(s.sampler()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
