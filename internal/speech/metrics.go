package speech

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    metricListenCycles = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "speech_listen_cycles_total",
        Help: "Listening cycles by outcome",
    }, []string{"outcome"})

    metricStaleResults = promauto.NewCounter(prometheus.CounterOpts{
        Name: "speech_stale_results_total",
        Help: "Recognition events dropped because their capture was no longer active",
    })

    metricUtterances = promauto.NewCounter(prometheus.CounterOpts{
        Name: "speech_utterances_total",
        Help: "Utterances handed to the synthesis engine",
    })

    metricUtterancesPreempted = promauto.NewCounter(prometheus.CounterOpts{
        Name: "speech_utterances_preempted_total",
        Help: "Utterances cancelled by a newer utterance",
    })

    metricEngineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "speech_engine_errors_total",
        Help: "Engine failures by engine",
    }, []string{"engine"})
)
