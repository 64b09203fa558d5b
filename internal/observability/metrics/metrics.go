package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes domain counters exported over OTLP.
type Metrics struct {
	planActivations     metric.Int64Counter
	invitationsCreated  metric.Int64Counter
	invitationsAccepted metric.Int64Counter
	orgSwitches         metric.Int64Counter
	tokenFallbacks      metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New creates the domain instruments on the given provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "insightboard"
	}
	meter := provider.Meter(name)

	planActivations, err := meter.Int64Counter("insightboard_plan_activations_total")
	if err != nil {
		return nil, err
	}
	invitationsCreated, err := meter.Int64Counter("insightboard_invitations_created_total")
	if err != nil {
		return nil, err
	}
	invitationsAccepted, err := meter.Int64Counter("insightboard_invitations_accepted_total")
	if err != nil {
		return nil, err
	}
	orgSwitches, err := meter.Int64Counter("insightboard_org_switches_total")
	if err != nil {
		return nil, err
	}
	tokenFallbacks, err := meter.Int64Counter("insightboard_invitation_token_fallback_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		planActivations:     planActivations,
		invitationsCreated:  invitationsCreated,
		invitationsAccepted: invitationsAccepted,
		orgSwitches:         orgSwitches,
		tokenFallbacks:      tokenFallbacks,
	}, nil
}

// RecordPlanActivation counts activation outcomes: created, unchanged or failed.
func (m *Metrics) RecordPlanActivation(ctx context.Context, plan, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("plan", strings.TrimSpace(plan)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.planActivations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordInvitationCreated(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.invitationsCreated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("role", role))...))
}

func (m *Metrics) RecordInvitationAccepted(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.invitationsAccepted.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

func (m *Metrics) RecordOrgSwitch(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.orgSwitches.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

// RecordTokenFallback counts invitation tokens generated locally because the
// database token function was unavailable.
func (m *Metrics) RecordTokenFallback(ctx context.Context) {
	if m == nil {
		return
	}
	m.tokenFallbacks.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"plan":        {},
	"role":        {},
	"outcome":     {},
	"reason":      {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
