package loop

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    metricSessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
        Name: "loop_sessions_open",
        Help: "Debugging sessions currently open",
    })

    metricFloorPreemptions = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "loop_floor_preemptions_total",
        Help: "Listen/speak preemptions by reason",
    }, []string{"reason"})

    metricSpeakTimeouts = promauto.NewCounter(prometheus.CounterOpts{
        Name: "loop_speak_timeout_resets_total",
        Help: "Speaking states reset because the client never reported an end",
    })
)
