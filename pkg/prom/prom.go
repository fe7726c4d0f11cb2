// Package prom holds the gateway's Prometheus metrics. Metrics are declared
// once in a table, registered by Create, and recorded through the typed
// helpers at the bottom of this file. Before Create every helper is a no-op.
package prom

import (
	"fmt"
	"sync"

	xhttp "github.com/nimasrn/studio-gateway/pkg/http"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemWebhook      = "webhook"
	SystemPayments     = "payments"
	SystemNotification = "notification"
	SystemEffects      = "effects"
)

const (
	MetricWebhookEvents            = "events_total"
	MetricReconcile                = "reconcile_total"
	MetricPushDeliveries           = "push_deliveries_total"
	MetricSubscriptionsDeactivated = "push_subscriptions_deactivated_total"
	MetricEmails                   = "emails_total"
	MetricScheduled                = "scheduled_total"
	MetricEffectDuration           = "duration_seconds"
)

type kind int

const (
	kindCounter kind = iota
	kindCounterVec
	kindHistogramVec
)

type definition struct {
	kind      kind
	subsystem string
	name      string
	help      string
	labels    []string
}

var definitions = []definition{
	{kindCounterVec, SystemWebhook, MetricWebhookEvents, "Wise webhook deliveries by event type and handling result.", []string{"event_type", "result"}},
	{kindCounterVec, SystemPayments, MetricReconcile, "Reconciliation outcomes.", []string{"outcome"}},
	{kindCounterVec, SystemNotification, MetricPushDeliveries, "Push deliveries per endpoint attempt.", []string{"result"}},
	{kindCounter, SystemNotification, MetricSubscriptionsDeactivated, "Push endpoints deactivated after a gone response.", nil},
	{kindCounterVec, SystemNotification, MetricEmails, "Emails sent by template and result.", []string{"template", "result"}},
	{kindCounterVec, SystemNotification, MetricScheduled, "Scheduled notification rows processed by result.", []string{"result"}},
	{kindHistogramVec, SystemEffects, MetricEffectDuration, "Post-commit effect execution time.", []string{"kind"}},
}

type metrics struct {
	registry      *prometheus.Registry
	counters      map[string]prometheus.Counter
	counterVecs   map[string]*prometheus.CounterVec
	histogramVecs map[string]*prometheus.HistogramVec
}

var (
	mu      sync.RWMutex
	current *metrics
)

func metricKey(subsystem, name string) string {
	return subsystem + "_" + name
}

// Create registers every metric under namespace with env and instance const
// labels, replacing any earlier registry.
func Create(host, env, namespace string) error {
	m := &metrics{
		registry:      prometheus.NewRegistry(),
		counters:      make(map[string]prometheus.Counter),
		counterVecs:   make(map[string]*prometheus.CounterVec),
		histogramVecs: make(map[string]*prometheus.HistogramVec),
	}
	constLabels := prometheus.Labels{"env": env, "instance": host}

	if err := m.registry.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if err := m.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return err
	}

	for _, d := range definitions {
		var c prometheus.Collector
		key := metricKey(d.subsystem, d.name)
		switch d.kind {
		case kindCounter:
			v := prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: d.subsystem, Name: d.name, Help: d.help, ConstLabels: constLabels,
			})
			m.counters[key], c = v, v
		case kindCounterVec:
			v := prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: d.subsystem, Name: d.name, Help: d.help, ConstLabels: constLabels,
			}, d.labels)
			m.counterVecs[key], c = v, v
		case kindHistogramVec:
			v := prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: d.subsystem, Name: d.name, Help: d.help, ConstLabels: constLabels,
				Buckets: prometheus.DefBuckets,
			}, d.labels)
			m.histogramVecs[key], c = v, v
		default:
			return fmt.Errorf("metric %s: unknown kind %d", key, d.kind)
		}
		if err := m.registry.Register(c); err != nil {
			return fmt.Errorf("register %s: %w", key, err)
		}
	}

	mu.Lock()
	current = m
	mu.Unlock()
	return nil
}

func active() *metrics {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// ListenAndServer serves the registry at url and a plain /health on addr.
// It blocks and panics when the listener fails.
func ListenAndServer(addr string, url string) {
	m := active()
	if m == nil {
		logger.Panic("[metrics-server] Create must run before ListenAndServer")
		return
	}
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	s := xhttp.CreateServer()
	s.GET(url, h)
	s.GET("/health", func(ctx *xhttp.RequestCtx) { ctx.SetBodyString("ok") })
	logger.Info("[metrics-server] listening", "addr", addr, "url", url)
	if err := s.ListenAndServe(addr); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func addCounter(subsystem, name string, n float64) {
	m := active()
	if m == nil {
		return
	}
	if c, ok := m.counters[metricKey(subsystem, name)]; ok {
		c.Add(n)
		return
	}
	logger.Warn("[metrics-server] counter not found", "subsystem", subsystem, "name", name)
}

func addCounterVec(subsystem, name string, n float64, labelValues ...string) {
	m := active()
	if m == nil {
		return
	}
	if c, ok := m.counterVecs[metricKey(subsystem, name)]; ok {
		c.WithLabelValues(labelValues...).Add(n)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func observe(subsystem, name string, v float64, labelValues ...string) {
	m := active()
	if m == nil {
		return
	}
	if h, ok := m.histogramVecs[metricKey(subsystem, name)]; ok {
		h.WithLabelValues(labelValues...).Observe(v)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

func IncWebhookEvent(eventType, result string) {
	addCounterVec(SystemWebhook, MetricWebhookEvents, 1, eventType, result)
}

func IncReconcile(outcome string) {
	addCounterVec(SystemPayments, MetricReconcile, 1, outcome)
}

func AddPushDeliveries(result string, n int) {
	if n <= 0 {
		return
	}
	addCounterVec(SystemNotification, MetricPushDeliveries, float64(n), result)
}

func AddSubscriptionsDeactivated(n int) {
	if n <= 0 {
		return
	}
	addCounter(SystemNotification, MetricSubscriptionsDeactivated, float64(n))
}

func IncEmail(template, result string) {
	addCounterVec(SystemNotification, MetricEmails, 1, template, result)
}

func IncScheduled(result string) {
	addCounterVec(SystemNotification, MetricScheduled, 1, result)
}

func ObserveEffectDuration(kind string, seconds float64) {
	observe(SystemEffects, MetricEffectDuration, seconds, kind)
}
