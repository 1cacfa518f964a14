package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"hookrelay/internal/config"
)

type TracerProvider struct {
	tp *sdktrace.TracerProvider
}

func (tp *TracerProvider) Tracer(name string) trace.Tracer {
	return tp.tp.Tracer(name)
}

func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.tp != nil {
		return tp.tp.Shutdown(ctx)
	}
	return nil
}

// Service identifies the running process on every exported span.
type Service struct {
	Name           string
	BrokerType     string
	TrackerBackend string
}

const (
	brokerTypeKey     = attribute.Key("hookrelay.broker.type")
	trackerBackendKey = attribute.Key("hookrelay.tracker.backend")
	relayModeKey      = attribute.Key("hookrelay.relay.enabled")
)

// newResource describes svc. tracing.service_name in config overrides the
// built-in service name, and OTEL_RESOURCE_ATTRIBUTES is honoured.
func newResource(ctx context.Context, cfg config.TracingConfig, svc Service) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = svc.Name
	}
	if name == "" {
		name = "webhook-service"
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(name),
		semconv.ServiceNamespaceKey.String("hookrelay"),
		relayModeKey.Bool(svc.BrokerType != ""),
	}
	if svc.BrokerType != "" {
		attrs = append(attrs, brokerTypeKey.String(svc.BrokerType))
	}
	if svc.TrackerBackend != "" {
		attrs = append(attrs, trackerBackendKey.String(svc.TrackerBackend))
	}

	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(attrs...),
	)
}

// Init installs the W3C propagators and, when tracing is enabled, a global
// provider exporting over OTLP/gRPC. When disabled the returned provider has
// no exporter and is not installed, so spans are no-ops but context still
// propagates across the relay.
func Init(cfg config.TracingConfig, svc Service) (*TracerProvider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := newResource(ctx, cfg, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if !cfg.Enabled {
		return &TracerProvider{tp: sdktrace.NewTracerProvider(sdktrace.WithResource(res))}, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLP.Endpoint),
	}
	if cfg.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(createSampler(cfg.Sampler)),
	)

	otel.SetTracerProvider(tp)

	return &TracerProvider{tp: tp}, nil
}

func createSampler(cfg config.SamplerConfig) sdktrace.Sampler {
	switch cfg.Type {
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(cfg.Param)
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Param))
	case "always_on":
		fallthrough
	default:
		return sdktrace.AlwaysSample()
	}
}

func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
