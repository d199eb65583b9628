package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API holds the status API metrics.
type API struct {
	reg *prometheus.Registry

	CacheLookups   *prometheus.CounterVec
	EventsConsumed prometheus.Counter
}

func NewAPI() *API {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &API{
		reg: reg,
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ubysync_api_cache_lookups_total",
			Help: "Guest cache lookups by result",
		}, []string{"result"}),
		EventsConsumed: f.NewCounter(prometheus.CounterOpts{
			Name: "ubysync_api_status_events_total",
			Help: "Guest status events applied to the cache",
		}),
	}
}

func (a *API) CacheHit() { a.CacheLookups.WithLabelValues("hit").Inc() }

func (a *API) CacheMiss() { a.CacheLookups.WithLabelValues("miss").Inc() }

func (a *API) EventApplied() { a.EventsConsumed.Inc() }

func (a *API) Handler() http.Handler {
	return promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{})
}
