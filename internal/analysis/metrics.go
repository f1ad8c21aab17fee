package analysis

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "analysis_client_requests_total",
        Help: "Chat-completions requests by result",
    }, []string{"result"})

    metricLatency = promauto.NewHistogram(prometheus.HistogramOpts{
        Name:    "analysis_client_latency_ms",
        Help:    "Time until response headers from the analysis endpoint",
        Buckets: prometheus.ExponentialBuckets(100, 1.8, 10),
    })
)
