package main

import "github.com/prometheus/client_golang/prometheus"

var (
	statusCodes      *prometheus.CounterVec
	validationFailed *prometheus.CounterVec
	goodRequest      prometheus.Counter
	badRequest       prometheus.Counter
)

func init() {
	statusCodes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_codes_total",
			Help: "Distribution by response status codes",
		},
		[]string{"path", "code"},
	)

	validationFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_failures_total",
			Help: "Number of responses whose validation report did not pass",
		},
		[]string{"schema"},
	)

	goodRequest = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "good_requests_total",
		Help: "Total number of requests to recognized paths",
	})

	badRequest = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bad_requests_total",
		Help: "Total number of requests to unsupported paths",
	})

	prometheus.MustRegister(statusCodes, validationFailed, goodRequest, badRequest)
}
