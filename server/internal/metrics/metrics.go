package metrics

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "roomrelay"

// Drop reasons recorded by MessageDropped.
const (
	ReasonMalformed = "malformed"
	ReasonInvalid   = "invalid"
	ReasonLagged    = "lagged"
)

// Registration results recorded by Registration.
const (
	ResultOK       = "ok"
	ResultConflict = "conflict"
	ResultInvalid  = "invalid"
)

// Metrics owns a private Prometheus registry with the relay's collectors.
type Metrics struct {
	reg *prometheus.Registry

	published     prometheus.Counter
	delivered     prometheus.Counter
	dropped       *prometheus.CounterVec
	registrations *prometheus.CounterVec
	connections   prometheus.Gauge
	upgradeErrors prometheus.Counter
}

// New builds the registry. rooms and sessions report the current number of
// entries held by each TTL store.
func New(rooms, sessions func() int) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Frames read from clients and published to a room.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Messages written to subscribers.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages not delivered to a subscriber, by reason.",
		}, []string{"reason"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts, by result.",
		}, []string{"result"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "WebSocket connections currently in a room.",
		}),
		upgradeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upgrade_failures_total",
			Help:      "WebSocket upgrades that failed.",
		}),
	}

	m.reg.MustRegister(
		m.published, m.delivered, m.dropped, m.registrations,
		m.connections, m.upgradeErrors,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms held in the room store, including expired rooms not yet reaped.",
		}, func() float64 { return float64(rooms()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Sessions held in the session store, including expired sessions not yet reaped.",
		}, func() float64 { return float64(sessions()) }),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Values gathers the registry and returns every relay series summed by
// metric name, without the namespace prefix. Go runtime series are skipped.
func (m *Metrics) Values() (map[string]float64, error) {
	mfs, err := m.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("metrics: gather: %w", err)
	}
	out := make(map[string]float64, len(mfs))
	for _, mf := range mfs {
		name, ok := strings.CutPrefix(mf.GetName(), namespace+"_")
		if !ok {
			continue
		}
		out[name] = sumFamily(mf)
	}
	return out, nil
}

// ByLabel returns the series of one relay metric broken down by label. name
// is given without the namespace prefix.
func (m *Metrics) ByLabel(name, label string) (map[string]float64, error) {
	mfs, err := m.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("metrics: gather: %w", err)
	}
	out := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != namespace+"_"+name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label {
					out[lp.GetValue()] += metric.GetCounter().GetValue() + metric.GetGauge().GetValue()
				}
			}
		}
	}
	return out, nil
}

// sumFamily adds up all counter and gauge values in a MetricFamily.
func sumFamily(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

func (m *Metrics) MessagePublished() { m.published.Inc() }
func (m *Metrics) MessageDelivered() { m.delivered.Inc() }
func (m *Metrics) MessageDropped(reason string) { m.dropped.WithLabelValues(reason).Inc() }
func (m *Metrics) Registration(result string) { m.registrations.WithLabelValues(result).Inc() }
func (m *Metrics) ConnectionOpened() { m.connections.Inc() }
func (m *Metrics) ConnectionClosed() { m.connections.Dec() }
func (m *Metrics) UpgradeFailed() { m.upgradeErrors.Inc() }
