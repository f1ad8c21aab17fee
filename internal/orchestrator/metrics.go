package orchestrator

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "orch_state_transitions_total",
        Help: "Orchestrator state transitions",
    }, []string{"from", "to"})

    metricAnalysisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "orch_analysis_requests_total",
        Help: "Analysis requests by outcome",
    }, []string{"outcome"})

    metricAnalysisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
        Name:    "orch_analysis_latency_ms",
        Help:    "Latency of the analysis service call",
        Buckets: prometheus.ExponentialBuckets(100, 1.8, 10),
    })

    metricActions = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "orch_actions_total",
        Help: "Actions applied to a debugging session",
    }, []string{"kind"})

    metricNarrations = promauto.NewCounter(prometheus.CounterOpts{
        Name: "orch_narrations_total",
        Help: "Narrations published to the outbox",
    })

    metricNarrationsDropped = promauto.NewCounter(prometheus.CounterOpts{
        Name: "orch_narrations_dropped_total",
        Help: "Narrations dropped because the outbox was full",
    })
)
