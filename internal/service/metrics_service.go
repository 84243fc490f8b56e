package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	outboxEvents    *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	homeworkCreated prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_written_total",
		Help: "Notification inserts by type and result",
	}, []string{"type", "result"})

	outboxEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "Outbox events handled by type and outcome",
	}, []string{"event_type", "outcome"})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "homework_submissions_total",
		Help: "Submission attempts by outcome",
	}, []string{"outcome"})

	homeworkCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "homework_created_total",
		Help: "Homework created",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, notifications, outboxEvents, submissions, homeworkCreated, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		notifications:   notifications,
		outboxEvents:    outboxEvents,
		submissions:     submissions,
		homeworkCreated: homeworkCreated,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordNotification counts a notification insert attempt.
func (m *MetricsService) RecordNotification(notificationType string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.notifications.WithLabelValues(notificationType, result).Inc()
}

// RecordOutboxEvent counts an outbox handling outcome (done, retry, failed, skipped).
func (m *MetricsService) RecordOutboxEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.outboxEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordSubmission counts a submission outcome (created, duplicate, in_progress).
func (m *MetricsService) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// RecordHomeworkCreated counts created homework.
func (m *MetricsService) RecordHomeworkCreated() {
	if m == nil {
		return
	}
	m.homeworkCreated.Inc()
}
