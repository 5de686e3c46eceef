// Package telemetry configures the process-wide tracer named in spec.md
// §6's telemetry config and §9 "global process state": single-init, a
// double call is an error. Consumed as a black box everywhere else in the
// gateway — only Init, Shutdown, and the span helpers are public.
package telemetry

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	initOnce sync.Once
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
)

// ErrAlreadyInitialized is returned by a second Init call.
var ErrAlreadyInitialized = errors.New("telemetry: already initialized")

// Config is the opaque tracer configuration from spec.md §6.
type Config struct {
	ServiceName string
	Enabled     bool
}

// Init configures the global tracer provider exactly once per process.
func Init(cfg Config) error {
	var err error
	alreadyRan := true
	initOnce.Do(func() {
		alreadyRan = false
		if !cfg.Enabled {
			tracer = otel.Tracer(cfg.ServiceName)
			return
		}
		res, resErr := resource.New(context.Background(),
			resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
		if resErr != nil {
			err = resErr
			return
		}
		provider = sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		otel.SetTracerProvider(provider)
		tracer = provider.Tracer(cfg.ServiceName)
	})
	if alreadyRan {
		return ErrAlreadyInitialized
	}
	return err
}

// StartSpan opens a named span, propagating ctx's existing trace context.
// A transport-carried Message.TracingContext is not read or attached by
// StartSpan or by its callers; the span's parent is whatever ctx carries.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = otel.Tracer("media-gateway")
	}
	return tracer.Start(ctx, name)
}

// Shutdown flushes and stops the tracer provider, if one was started.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}
