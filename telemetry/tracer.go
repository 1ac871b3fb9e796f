// Package telemetry configures OpenTelemetry tracing.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/hupe1980/agentdesk/logging"
)

// Options configure InitTracer.
type Options struct {
	// Writer receives exported spans; defaults to stdout.
	Writer io.Writer
	// PrettyPrint indents the exported JSON.
	PrettyPrint bool
}

// InitTracer installs a global tracer provider exporting to stdout and
// returns its shutdown function.
func InitTracer(serviceName string, logger logging.Logger, optFns ...func(o *Options)) (func(context.Context) error, error) {
	opts := Options{PrettyPrint: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	var exporterOpts []stdouttrace.Option
	if opts.PrettyPrint {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	if opts.Writer != nil {
		exporterOpts = append(exporterOpts, stdouttrace.WithWriter(opts.Writer))
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	if logger != nil {
		logger.Info("telemetry.initialized", "service", serviceName)
	}
	return tp.Shutdown, nil
}
