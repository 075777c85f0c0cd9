package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector owns the service metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry
	logger   hclog.Logger

	provisionCommandsTotal *prometheus.CounterVec
	sessionOperationsTotal *prometheus.CounterVec
	stageDuration          *prometheus.HistogramVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	partiesRegistered      *prometheus.GaugeVec
	sessionInitialized     prometheus.Gauge
}

func NewCollector(namespace string, logger hclog.Logger) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)
	c := &Collector{
		registry: registry,
		logger:   logger,
	}

	c.provisionCommandsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provision_commands_total",
			Help:      "Party start commands by role and outcome",
		},
		[]string{"role", "outcome"},
	)

	c.sessionOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_operations_total",
			Help:      "Session operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	c.stageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of training pipeline stages",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"stage", "outcome"},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "code"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	c.partiesRegistered = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parties_registered",
			Help:      "Registered parties by role",
		},
		[]string{"role"},
	)

	c.sessionInitialized = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_initialized",
			Help:      "1 while the computation session is initialized",
		},
	)

	return c
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObserveCommand counts one party start command.
func (c *Collector) ObserveCommand(role model.Role, outcome string) {
	c.provisionCommandsTotal.WithLabelValues(string(role), outcome).Inc()
}

// ObserveOperation counts one session operation.
func (c *Collector) ObserveOperation(operation string, err error) {
	c.sessionOperationsTotal.WithLabelValues(operation, outcome(err)).Inc()
}

func (c *Collector) ObserveStage(stage string, duration time.Duration, err error) {
	c.stageDuration.WithLabelValues(stage, outcome(err)).Observe(duration.Seconds())
}

func (c *Collector) ObserveRequest(route, method string, code int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	c.httpRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

func (c *Collector) SetClusterState(state *model.ClusterState) {
	heads := 0
	if state.Head != nil {
		heads = 1
	}
	c.partiesRegistered.WithLabelValues(string(model.RoleHead)).Set(float64(heads))
	c.partiesRegistered.WithLabelValues(string(model.RoleWorker)).Set(float64(len(state.Workers)))
}

func (c *Collector) SetSessionInitialized(initialized bool) {
	if initialized {
		c.sessionInitialized.Set(1)
		return
	}
	c.sessionInitialized.Set(0)
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog: c.logger.StandardLogger(&hclog.StandardLoggerOptions{}),
	})
}
