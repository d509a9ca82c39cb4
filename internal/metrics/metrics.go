package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tilefix_tiles_total",
		Help: "Tiles handled by the correction engine, by outcome",
	}, []string{"outcome"})
	CorrectionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tilefix_correction_failures_total",
		Help: "Tiles whose corrections could not be obtained",
	})
	RasterFetchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilefix_raster_fetch_duration_ms",
		Help:    "Upstream raster fetch duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000},
	})
	RenderDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilefix_render_duration_ms",
		Help:    "Compositing duration in milliseconds",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
	})
	CacheFeatures = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tilefix_cache_features",
		Help: "Decoded correction features held in the cache",
	})
	ProxyRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tilefix_proxy_requests_total",
		Help: "Proxy requests by route and status code",
	}, []string{"route", "code"})
)

// Tile outcomes.
const (
	OutcomeFixed     = "fixed"
	OutcomeUnchanged = "unchanged"
	OutcomeFallback  = "fallback"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
)

func init() {
	prometheus.MustRegister(TilesTotal)
	prometheus.MustRegister(CorrectionFailuresTotal)
	prometheus.MustRegister(RasterFetchDurationMs)
	prometheus.MustRegister(RenderDurationMs)
	prometheus.MustRegister(CacheFeatures)
	prometheus.MustRegister(ProxyRequestsTotal)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
