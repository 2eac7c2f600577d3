package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collegeplan/internal/config"
	"collegeplan/internal/types"
)

// MetricsCollector records API telemetry. Implementations never fail the
// caller; publishing errors are logged.
type MetricsCollector interface {
	// RecordRequest records one request's count and latency. route is the
	// matched chi pattern, not the raw path.
	RecordRequest(method, route, status string, duration time.Duration)

	// RecordUsage records a quota admission result ("accepted", "limited", "error").
	RecordUsage(feature types.FeatureType, result string)

	// RecordWebhook records a processed webhook event and its outcome.
	RecordWebhook(eventType, result string)
}

// MetricsExporter is implemented by collectors that serve a scrape endpoint.
type MetricsExporter interface {
	Handler() http.Handler
}

// Metric backends selectable through METRICS_BACKEND.
const (
	MetricsBackendNone       = "none"
	MetricsBackendPrometheus = "prometheus"
	MetricsBackendCloudWatch = "cloudwatch"
)

// NewMetricsCollector builds the collector selected by cfg. The returned
// closer flushes buffered data and must be called on shutdown.
func NewMetricsCollector(ctx context.Context, cfg *config.Config, logger *slog.Logger) (MetricsCollector, func() error, error) {
	noClose := func() error { return nil }

	switch cfg.Observability.MetricsBackend {
	case MetricsBackendPrometheus:
		return NewPrometheusMetrics(cfg.Observability.MetricNamespace), noClose, nil

	case MetricsBackendCloudWatch:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, nil, fmt.Errorf("loading AWS config: %w", err)
		}
		client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		m := NewCloudWatchMetrics(client, cfg.Observability.MetricNamespace, logger)
		return m, m.Close, nil

	default:
		return NoopMetrics{}, noClose, nil
	}
}

// NoopMetrics discards all telemetry.
type NoopMetrics struct{}

func (NoopMetrics) RecordRequest(string, string, string, time.Duration) {}
func (NoopMetrics) RecordUsage(types.FeatureType, string)               {}
func (NoopMetrics) RecordWebhook(string, string)                        {}

// ---------------------------------------------------------------------------
// Prometheus
// ---------------------------------------------------------------------------

// PrometheusMetrics keeps metrics in its own registry, served by Handler.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	usage    *prometheus.CounterVec
	webhooks *prometheus.CounterVec
}

// NewPrometheusMetrics registers the API metrics under namespace, lowercased.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	ns := strings.ToLower(namespace)
	reg := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		usage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "usage_admissions_total",
			Help:      "Quota admission decisions by feature and result",
		}, []string{"feature", "result"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "webhook_events_total",
			Help:      "Processed billing webhook events by type and result",
		}, []string{"event_type", "result"}),
	}

	reg.MustRegister(
		m.requests,
		m.latency,
		m.usage,
		m.webhooks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *PrometheusMetrics) RecordRequest(method, route, status string, duration time.Duration) {
	m.requests.WithLabelValues(method, route, status).Inc()
	m.latency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordUsage(feature types.FeatureType, result string) {
	m.usage.WithLabelValues(string(feature), result).Inc()
}

func (m *PrometheusMetrics) RecordWebhook(eventType, result string) {
	m.webhooks.WithLabelValues(eventType, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ---------------------------------------------------------------------------
// CloudWatch
// ---------------------------------------------------------------------------

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

const (
	cloudWatchBatchSize  = 20
	cloudWatchBuffer     = 1024
	cloudWatchFlushEvery = 10 * time.Second
	cloudWatchPutTimeout = 5 * time.Second
)

// CloudWatchMetrics buffers datums and publishes them in batches from a
// background loop, keeping PutMetricData off the request path. Datums
// recorded while the buffer is full are dropped.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger

	data      chan cwtypes.MetricDatum
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewCloudWatchMetrics starts the publishing loop. Close stops it.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	return newCloudWatchMetrics(client, namespace, logger, cloudWatchFlushEvery)
}

func newCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger, flushEvery time.Duration) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	m := &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
		data:      make(chan cwtypes.MetricDatum, cloudWatchBuffer),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go m.loop(flushEvery)
	return m
}

func (m *CloudWatchMetrics) RecordRequest(method, route, status string, duration time.Duration) {
	dims := dimensions(
		types.DimMethod, method,
		types.DimRoute, route,
		types.DimStatus, status,
	)
	m.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAPIRequest),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	})
	m.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAPILatency),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: dims[:2],
	})
}

func (m *CloudWatchMetrics) RecordUsage(feature types.FeatureType, result string) {
	m.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricUsageAdmission),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dimensions(
			types.DimFeature, string(feature),
			types.DimResult, result,
		),
	})
}

func (m *CloudWatchMetrics) RecordWebhook(eventType, result string) {
	m.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricWebhookEvent),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dimensions(
			types.DimEventType, eventType,
			types.DimResult, result,
		),
	})
}

// Close publishes everything still buffered and stops the loop.
func (m *CloudWatchMetrics) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

func (m *CloudWatchMetrics) enqueue(d cwtypes.MetricDatum) {
	select {
	case m.data <- d:
	default:
		m.logger.Warn("metrics buffer full, dropping datum", "metric", aws.ToString(d.MetricName))
	}
}

func (m *CloudWatchMetrics) loop(flushEvery time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	batch := make([]cwtypes.MetricDatum, 0, cloudWatchBatchSize)
	add := func(d cwtypes.MetricDatum) {
		batch = append(batch, d)
		if len(batch) == cloudWatchBatchSize {
			m.put(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case d := <-m.data:
			add(d)
		case <-ticker.C:
			if len(batch) > 0 {
				m.put(batch)
				batch = batch[:0]
			}
		case <-m.stop:
			for {
				select {
				case d := <-m.data:
					add(d)
				default:
					if len(batch) > 0 {
						m.put(batch)
					}
					return
				}
			}
		}
	}
}

func (m *CloudWatchMetrics) put(batch []cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.Background(), cloudWatchPutTimeout)
	defer cancel()

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: slices.Clone(batch),
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to publish metrics",
			"error", err.Error(),
			"namespace", m.namespace,
			"datums", len(batch),
		)
	}
}

func dimension(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// dimensions builds dimensions from name/value pairs. CloudWatch rejects a
// whole PutMetricData call on an empty dimension value, so empty values are
// replaced with unknownDimensionValue.
func dimensions(pairs ...string) []cwtypes.Dimension {
	out := make([]cwtypes.Dimension, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		value := pairs[i+1]
		if value == "" {
			value = unknownDimensionValue
		}
		out = append(out, dimension(pairs[i], value))
	}
	return out
}

const unknownDimensionValue = "unknown"

var (
	_ MetricsCollector = NoopMetrics{}
	_ MetricsCollector = (*PrometheusMetrics)(nil)
	_ MetricsExporter  = (*PrometheusMetrics)(nil)
	_ MetricsCollector = (*CloudWatchMetrics)(nil)
)
