package cloudmetrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const exporterOTLP = "otlp"

type metrics struct {
	aiMessages          *prometheus.CounterVec
	leadScores          *prometheus.CounterVec
	webhookDeliveries   *prometheus.CounterVec
	activeSubscriptions *prometheus.GaugeVec
	engineErrors        *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		aiMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freshcrm_ai_messages_total",
			Help: "AI assistant messages recorded against org quota.",
		}, []string{"org_id", "feature"}),
		leadScores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freshcrm_lead_scores_total",
			Help: "Lead score computations by resulting qualification.",
		}, []string{"org_id", "qualification"}),
		webhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freshcrm_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome.",
		}, []string{"org_id", "status"}),
		activeSubscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "freshcrm_active_subscriptions",
			Help: "Entitled subscriptions currently held by the org.",
		}, []string{"org_id"}),
		engineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "freshcrm_engine_errors_total",
			Help: "Internal failures in background processing.",
		}, []string{"org_id", "operation"}),
	}

	registry.MustRegister(
		m.aiMessages,
		m.leadScores,
		m.webhookDeliveries,
		m.activeSubscriptions,
		m.engineErrors,
	)
	return m
}

// CloudMetrics aggregates instance-level gauges for the periodic control
// plane push. It owns its registry so the payload stays small.
type CloudMetrics struct {
	registry *prometheus.Registry
	pusher   Pusher
	log      *zap.Logger

	memorySys     prometheus.Gauge
	organizations prometheus.Gauge
}

func New(registry *prometheus.Registry, pusher Pusher, instanceID, version string, logger *zap.Logger) *CloudMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	labels := prometheus.Labels{
		"instance_id": instanceID,
		"version":     version,
	}
	c := &CloudMetrics{
		registry: registry,
		pusher:   pusher,
		log:      logger.Named("cloudmetrics"),
		memorySys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "freshcrm_instance_memory_sys_bytes",
			Help:        "Memory obtained from the OS by this instance.",
			ConstLabels: labels,
		}),
		organizations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "freshcrm_instance_organizations_total",
			Help:        "Organizations hosted by this instance.",
			ConstLabels: labels,
		}),
	}
	registry.MustRegister(c.memorySys, c.organizations)
	return c
}

func (c *CloudMetrics) SetMemoryUsage(bytes uint64) {
	if c == nil {
		return
	}
	c.memorySys.Set(float64(bytes))
}

func (c *CloudMetrics) SetOrganizationsTotal(count int64) {
	if c == nil {
		return
	}
	c.organizations.Set(float64(count))
}

func (c *CloudMetrics) Push(ctx context.Context) error {
	if c == nil || c.pusher == nil {
		return nil
	}
	return c.pusher.Push(ctx, c.registry)
}
