package monitoring

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vei"

// PrometheusRecorder implements Recorder with Prometheus collectors
// registered on a private registry.
type PrometheusRecorder struct {
	registry *prom.Registry

	builds        *prom.CounterVec
	buildDuration *prom.HistogramVec
	reloads       prom.Counter
	clients       prom.Gauge
	watchEvents   *prom.CounterVec
}

// NewPrometheusRecorder creates the collectors and registers them on reg,
// or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}

	pr := &PrometheusRecorder{
		registry: reg,
		builds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Builds by kind and outcome",
		}, []string{"kind", "outcome"}),
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of builds",
			Buckets:   prom.DefBuckets,
		}, []string{"kind"}),
		reloads: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "reload_broadcasts_total",
			Help:      "Reload messages broadcast to connected clients",
		}),
		clients: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Currently connected reload clients",
		}),
		watchEvents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "watch_events_total",
			Help:      "File system events by resulting action",
		}, []string{"action"}),
	}

	reg.MustRegister(pr.builds, pr.buildDuration, pr.reloads, pr.clients, pr.watchEvents)
	return pr
}

func (p *PrometheusRecorder) ObserveBuild(kind BuildKind, outcome Outcome, d time.Duration) {
	p.builds.WithLabelValues(string(kind), string(outcome)).Inc()
	p.buildDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncReloadBroadcast() {
	p.reloads.Inc()
}

func (p *PrometheusRecorder) SetConnectedClients(n int) {
	p.clients.Set(float64(n))
}

func (p *PrometheusRecorder) IncWatchEvent(action string) {
	p.watchEvents.WithLabelValues(action).Inc()
}

// Registry returns the registry the collectors live on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
