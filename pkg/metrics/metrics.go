// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package metrics holds the Prometheus collectors for the proxy.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	proxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_proxy_requests_total",
			Help: "Proxied JSON-RPC requests by class and outcome",
		},
		[]string{"class", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcp_proxy_request_duration_seconds",
			Help:    "Request duration by class",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class"},
	)
)

func init() {
	prometheus.MustRegister(proxyRequests, requestDuration)
}

// ObserveRequest records one handled request.
func ObserveRequest(class, outcome string, d time.Duration) {
	proxyRequests.WithLabelValues(class, outcome).Inc()
	requestDuration.WithLabelValues(class).Observe(d.Seconds())
}

// RegisterSessionGauge exposes the session table size. Call once at startup.
func RegisterSessionGauge(size func() int) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "mcp_proxy_active_sessions",
			Help: "Current number of proxy session mappings",
		},
		func() float64 { return float64(size()) },
	))
}
