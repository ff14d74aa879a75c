package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atlas",
		Name:      "commands_total",
		Help:      "Host commands handled, by command and outcome (ok or error kind).",
	}, []string{"command", "outcome"})

	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "atlas",
		Name:      "command_duration_seconds",
		Help:      "Host command latency in seconds.",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"command"})

	FolderBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "atlas",
		Name:      "folder_bytes_total",
		Help:      "Bytes reported by successful folder size calls.",
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atlas",
		Name:      "http_requests_total",
		Help:      "Bridge HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "atlas",
		Name:      "http_rate_limited_total",
		Help:      "Bridge requests rejected by the rate limiter.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		CommandsTotal,
		CommandDuration,
		FolderBytesTotal,
		HTTPRequestsTotal,
		HTTPRateLimited,
	)
}
