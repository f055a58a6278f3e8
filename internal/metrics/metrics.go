package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/SigNoz/checkout-service/pkg/config"
)

// Webhook outcomes, used as the "outcome" attribute
const (
	WebhookProcessed         = "processed"
	WebhookBadSignature      = "bad_signature"
	WebhookMalformed         = "ignored_malformed"
	WebhookDuplicate         = "ignored_duplicate"
	WebhookUnknownOrder      = "unknown_order"
	WebhookIgnoredEvent      = "ignored_event"
	WebhookIllegalTransition = "ignored_illegal_transition"
	WebhookError             = "error"
)

// AppMetrics holds all application metrics
type AppMetrics struct {
	// HTTP Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestsErrors  metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Database Metrics
	DBQueriesTotal  metric.Int64Counter
	DBQueryDuration metric.Float64Histogram

	// Business Metrics
	OrdersCreated      metric.Int64Counter
	RevenueTotal       metric.Float64Counter
	CheckoutFailures   metric.Int64Counter
	PromoDropped       metric.Int64Counter
	PaymentTransitions metric.Int64Counter
	StockReleased      metric.Int64Counter
	InventoryLevel     metric.Int64Gauge

	// Webhook / coordination
	WebhookEvents           metric.Int64Counter
	WebhookProcessingErrors metric.Int64Counter
	LockTimeouts            metric.Int64Counter
	NotificationFailures    metric.Int64Counter

	// Cache Metrics
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// Service name for adding to all metrics
	serviceName string
}

// InitMetrics initializes OpenTelemetry metrics with an OTLP HTTP exporter
func InitMetrics(ctx context.Context, cfg *config.Config) (*AppMetrics, *sdkmetric.MeterProvider, error) {
	envRes, err := resource.New(ctx, resource.WithFromEnv())
	if err != nil {
		envRes = resource.Empty()
	}

	// Explicit attributes take precedence over environment
	explicitRes, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.OTELServiceName),
			semconv.ServiceVersion(cfg.OTELServiceVersion),
			attribute.String("deployment.environment", cfg.OTELDeploymentEnvironment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create explicit resource: %w", err)
	}

	res, err := resource.Merge(envRes, explicitRes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to merge resources: %w", err)
	}

	// WithEndpoint expects host:port without scheme
	exporterOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.OTELExporterOTLPEndpoint),
		otlpmetrichttp.WithURLPath("/v1/metrics"),
	}
	if cfg.OTELExporterOTLPHeaders != "" {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithHeaders(parseHeaders(cfg.OTELExporterOTLPHeaders)))
	}
	if cfg.OTELExporterOTLPInsecure {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	fmt.Printf("\n=== Metrics Exporter Configuration ===\n")
	fmt.Printf("Endpoint: %s\n", cfg.OTELExporterOTLPEndpoint)
	fmt.Printf("Path: /v1/metrics\n")
	fmt.Printf("Export interval: 10 seconds\n")
	fmt.Printf("Service name: %s\n", cfg.OTELServiceName)
	fmt.Printf("=====================================\n\n")

	reader := sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(10*time.Second),
	)

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(meterProvider)

	appMetrics, err := NewAppMetrics(meterProvider.Meter(cfg.OTELServiceName), cfg.OTELServiceName)
	if err != nil {
		return nil, nil, err
	}
	return appMetrics, meterProvider, nil
}

// NewNoop returns metrics backed by a no-op meter.
func NewNoop() *AppMetrics {
	m, _ := NewAppMetrics(noop.NewMeterProvider().Meter("noop"), "noop")
	return m
}

// NewAppMetrics creates every instrument on the given meter
func NewAppMetrics(meter metric.Meter, serviceName string) (*AppMetrics, error) {
	// SigNoz default histogram buckets in milliseconds, expanded to 60s
	buckets := []float64{2, 4, 6, 8, 10, 50, 100, 200, 400, 800, 1000, 1400, 2000, 5000, 10000, 15000, 20000, 30000, 45000, 60000}

	m := &AppMetrics{serviceName: serviceName}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.HTTPRequestsTotal, "http.server.request.count", "Total number of HTTP requests"},
		{&m.HTTPRequestsErrors, "http.server.request.error.count", "Total number of HTTP error requests"},
		{&m.DBQueriesTotal, "db.client.queries.count", "Total number of database queries"},
		{&m.OrdersCreated, "orders_created_total", "Total number of orders created"},
		{&m.CheckoutFailures, "checkout_failures_total", "Checkouts rolled back, by reason"},
		{&m.PromoDropped, "promo_dropped_total", "Stale promo codes dropped at checkout"},
		{&m.PaymentTransitions, "payment_transitions_total", "Payment status transitions, by source"},
		{&m.StockReleased, "stock_released_units_total", "Units returned to inventory by compensating transitions"},
		{&m.WebhookEvents, "webhook_events_total", "Webhook deliveries, by outcome"},
		{&m.WebhookProcessingErrors, "webhook_processing_errors_total", "Webhook failures after the idempotency key was claimed"},
		{&m.LockTimeouts, "lock_timeouts_total", "Order lock acquisitions that timed out"},
		{&m.NotificationFailures, "notification_failures_total", "Notifications that could not be enqueued"},
		{&m.CacheHits, "cache_hits_total", "Total number of cache hits"},
		{&m.CacheMisses, "cache_misses_total", "Total number of cache misses"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	m.DBQueryDuration, err = meter.Float64Histogram(
		"db.client.queries.duration",
		metric.WithDescription("Database query duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create db duration histogram: %w", err)
	}

	m.RevenueTotal, err = meter.Float64Counter(
		"revenue_total",
		metric.WithDescription("Total order value at checkout"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create revenue counter: %w", err)
	}

	m.InventoryLevel, err = meter.Int64Gauge(
		"inventory_level",
		metric.WithDescription("Stock level after the last ledger operation"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inventory gauge: %w", err)
	}

	return m, nil
}

// WithServiceName adds service.name to attributes
func (m *AppMetrics) WithServiceName(attrs []attribute.KeyValue) []attribute.KeyValue {
	return append(attrs, attribute.String("service.name", m.serviceName))
}

// RecordDBQuery records database query metrics including the SQL statement
func (m *AppMetrics) RecordDBQuery(ctx context.Context, operation, table, statement string, start time.Time, success bool) {
	duration := time.Since(start).Milliseconds()

	status := "success"
	if !success {
		status = "error"
	}

	attrs := []attribute.KeyValue{
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
		attribute.String("db.statement", statement),
		attribute.String("db.system", "mysql"),
		attribute.String("status", status),
	}

	m.DBQueriesTotal.Add(ctx, 1, metric.WithAttributes(m.WithServiceName(attrs)...))
	m.DBQueryDuration.Record(ctx, float64(duration), metric.WithAttributes(m.WithServiceName(attrs)...))
}

// RecordWebhook counts a webhook delivery by outcome. Errors that leave the
// idempotency key claimed, and events the state machine refused, also bump
// the processing-error alert counter: the provider will not redeliver them.
func (m *AppMetrics) RecordWebhook(ctx context.Context, eventType, outcome string, keyClaimed bool) {
	attrs := m.WithServiceName([]attribute.KeyValue{
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	})
	m.WebhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
	if (outcome == WebhookError && keyClaimed) || outcome == WebhookIllegalTransition {
		m.WebhookProcessingErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordPaymentTransition counts a payment status change.
func (m *AppMetrics) RecordPaymentTransition(ctx context.Context, from, to, source string) {
	m.PaymentTransitions.Add(ctx, 1, metric.WithAttributes(m.WithServiceName([]attribute.KeyValue{
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("source", source),
	})...))
}

// RecordCheckoutFailure counts a rolled back checkout.
func (m *AppMetrics) RecordCheckoutFailure(ctx context.Context, reason string) {
	m.CheckoutFailures.Add(ctx, 1, metric.WithAttributes(m.WithServiceName([]attribute.KeyValue{
		attribute.String("reason", reason),
	})...))
}

// RecordStockLevel records the stock of a product after a ledger operation.
func (m *AppMetrics) RecordStockLevel(ctx context.Context, productID string, level int) {
	m.InventoryLevel.Record(ctx, int64(level), metric.WithAttributes(m.WithServiceName([]attribute.KeyValue{
		attribute.String("product_id", productID),
	})...))
}

// parseHeaders parses header string in format "key1=value1,key2=value2"
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	if headerStr == "" {
		return headers
	}

	pairs := strings.Split(headerStr, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return headers
}
