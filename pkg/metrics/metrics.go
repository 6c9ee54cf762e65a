// Package metrics exposes simulator activity as Prometheus collectors.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/hub"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/session"
)

// Namespace prefixes every metric name.
const Namespace = "hcsim"

// Metrics holds the simulator collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	messages       *prometheus.CounterVec
	sessionErrors  *prometheus.CounterVec
	broadcasts     *prometheus.CounterVec
	adminClients   prometheus.Gauge
	applianceLoads prometheus.Counter
	entities       prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of open protocol sessions",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "opened_total",
			Help:      "Total protocol sessions opened",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "messages_total",
			Help:      "Protocol messages by direction and action",
		}, []string{"direction", "action"}),
		sessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "errors_total",
			Help:      "Sessions ended by an error, by stage",
		}, []string{"stage"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "appliance",
			Name:      "broadcasts_total",
			Help:      "Notifications broadcast to sessions, by resource",
		}, []string{"resource"}),
		adminClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "admin",
			Name:      "clients",
			Help:      "Number of connected admin WebSocket clients",
		}),
		applianceLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "appliance",
			Name:      "loads_total",
			Help:      "Appliances loaded",
		}),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "appliance",
			Name:      "entities",
			Help:      "Entities of the loaded appliance",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsActive,
		m.sessionsTotal,
		m.messages,
		m.sessionErrors,
		m.broadcasts,
		m.adminClients,
		m.applianceLoads,
		m.entities,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) MessageReceived(action string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues("in", action).Inc()
}

func (m *Metrics) MessageSent(action string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues("out", action).Inc()
}

func (m *Metrics) SessionError(stage string) {
	if m == nil {
		return
	}
	m.sessionErrors.WithLabelValues(stage).Inc()
}

// ObserveBroadcast counts one broadcast.
func (m *Metrics) ObserveBroadcast(resource string, _ int) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(resource).Inc()
}

// AdminClients sets the admin client gauge.
func (m *Metrics) AdminClients(n int) {
	if m == nil {
		return
	}
	m.adminClients.Set(float64(n))
}

// ApplianceLoaded records a newly loaded appliance with n entities.
func (m *Metrics) ApplianceLoaded(n int) {
	if m == nil {
		return
	}
	m.applianceLoads.Inc()
	m.entities.Set(float64(n))
}

var (
	_ session.Observer        = (*Metrics)(nil)
	_ model.BroadcastObserver = (*Metrics)(nil)
	_ hub.Observer            = (*Metrics)(nil)
)
