package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the engine and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	ticksTotal         prometheus.Counter
	tickDuration       prometheus.Histogram
	candidatesSelected prometheus.Counter

	thresholdsFiredTotal  *prometheus.CounterVec
	itemsSkippedTotal     *prometheus.CounterVec
	remindersEmittedTotal *prometheus.CounterVec
	deliveriesQueuedTotal *prometheus.CounterVec
	deliveriesSentTotal   *prometheus.CounterVec
	deliveriesFailedTotal *prometheus.CounterVec
	deliverySendDuration  *prometheus.HistogramVec
	workerInflight        *prometheus.GaugeVec
	retryScheduledTotal   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "escalation_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "escalation_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ticksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "escalation_engine",
				Name:      "ticks_total",
				Help:      "Total number of completed escalation ticks.",
			},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "escalation_engine",
				Name:      "tick_duration_seconds",
				Help:      "Full escalation tick duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		candidatesSelected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "escalation_engine",
				Name:      "candidates_selected_total",
				Help:      "Total number of candidates selected for escalation.",
			},
		),
		thresholdsFiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "escalation_engine",
				Name:      "thresholds_fired_total",
				Help:      "Total number of thresholds fired grouped by threshold.",
			},
			[]string{"threshold"},
		),
		itemsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "escalation_engine",
				Name:      "items_skipped_total",
				Help:      "Total number of candidates skipped without firing grouped by reason.",
			},
			[]string{"reason"},
		),
		remindersEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "escalation_engine",
				Name:      "reminders_emitted_total",
				Help:      "Total number of reminder records written grouped by category.",
			},
			[]string{"category"},
		),
		deliveriesQueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "escalation_engine",
				Name:      "deliveries_queued_total",
				Help:      "Total number of deliveries published to work queues.",
			},
			[]string{"queue"},
		),
		deliveriesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "escalation_engine",
				Name:      "deliveries_sent_total",
				Help:      "Total number of deliveries sent successfully.",
			},
			[]string{"channel"},
		),
		deliveriesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "escalation_engine",
				Name:      "deliveries_failed_total",
				Help:      "Total number of deliveries that ended in failed state.",
			},
			[]string{"channel", "reason"},
		),
		deliverySendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "escalation_engine",
				Name:      "delivery_send_duration_seconds",
				Help:      "Notifier send duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "escalation_engine",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight worker operations grouped by channel.",
			},
			[]string{"channel"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "escalation_engine",
				Name:      "retry_scheduled_total",
				Help:      "Total number of deliveries scheduled for retry.",
			},
			[]string{"channel"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.ticksTotal,
		m.tickDuration,
		m.candidatesSelected,
		m.thresholdsFiredTotal,
		m.itemsSkippedTotal,
		m.remindersEmittedTotal,
		m.deliveriesQueuedTotal,
		m.deliveriesSentTotal,
		m.deliveriesFailedTotal,
		m.deliverySendDuration,
		m.workerInflight,
		m.retryScheduledTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncTick() {
	if m == nil {
		return
	}
	m.ticksTotal.Inc()
}

func (m *Metrics) ObserveTickDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.tickDuration.Observe(seconds)
}

func (m *Metrics) AddCandidatesSelected(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.candidatesSelected.Add(float64(count))
}

func (m *Metrics) IncThresholdFired(threshold string) {
	if m == nil {
		return
	}
	m.thresholdsFiredTotal.WithLabelValues(normalizeLabel(threshold)).Inc()
}

func (m *Metrics) IncItemSkipped(reason string) {
	if m == nil {
		return
	}
	m.itemsSkippedTotal.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncReminderEmitted(category string) {
	if m == nil {
		return
	}
	m.remindersEmittedTotal.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *Metrics) IncDeliveryPublished(queueName string) {
	if m == nil {
		return
	}
	m.deliveriesQueuedTotal.WithLabelValues(normalizeLabel(queueName)).Inc()
}

func (m *Metrics) IncDeliverySent(channel string) {
	if m == nil {
		return
	}
	m.deliveriesSentTotal.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *Metrics) IncDeliveryFailed(channel string, reason string) {
	if m == nil {
		return
	}
	m.deliveriesFailedTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveSendDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.deliverySendDuration.WithLabelValues(normalizeLabel(channel)).Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight(channel string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *Metrics) DecWorkerInFlight(channel string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(channel)).Dec()
}

func (m *Metrics) IncRetryScheduled(channel string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
