package upstream

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	retriesTotal prometheus.Counter
	fetchErrors  *prometheus.CounterVec
)

func init() {
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upstream_cache_hits_total",
		Help: "Number of fetches served from the cache",
	})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upstream_cache_misses_total",
		Help: "Number of fetches that had to hit the network",
	})

	retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "upstream_retries_total",
		Help: "Number of retried upstream attempts",
	})

	fetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Number of failed fetches by error kind",
		},
		[]string{"kind"},
	)

	prometheus.MustRegister(cacheHits, cacheMisses, retriesTotal, fetchErrors)
}
