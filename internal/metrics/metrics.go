// Package metrics holds the Prometheus collectors for the OAuth handshake
// and project fetches.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "supalink"

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics is a set of collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	oauthCallbacks    *prometheus.CounterVec
	tokenExchanges    *prometheus.CounterVec
	projectFetches    *prometheus.CounterVec
	projectsConnected prometheus.Gauge
}

// New registers the collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		oauthCallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_callbacks_total",
			Help:      "OAuth callbacks handled, by outcome.",
		}, []string{"result"}),
		tokenExchanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_exchanges_total",
			Help:      "Authorization code exchanges attempted, by outcome.",
		}, []string{"result"}),
		projectFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "project_fetches_total",
			Help:      "Project list fetches, by outcome.",
		}, []string{"result"}),
		projectsConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projects_connected",
			Help:      "Projects visible through the stored credential.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// OAuthCallback counts one callback outcome.
func (m *Metrics) OAuthCallback(result string) {
	if m == nil {
		return
	}
	m.oauthCallbacks.WithLabelValues(result).Inc()
}

// TokenExchange counts one code exchange.
func (m *Metrics) TokenExchange(err error) {
	if m == nil {
		return
	}
	m.tokenExchanges.WithLabelValues(resultOf(err)).Inc()
}

// ProjectFetch counts one project fetch.
func (m *Metrics) ProjectFetch(err error) {
	if m == nil {
		return
	}
	m.projectFetches.WithLabelValues(resultOf(err)).Inc()
}

// SetProjectsConnected sets the project gauge.
func (m *Metrics) SetProjectsConnected(n int) {
	if m == nil {
		return
	}
	m.projectsConnected.Set(float64(n))
}

func resultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
