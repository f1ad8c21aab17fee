package clientws

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    metricClients = promauto.NewGauge(prometheus.GaugeOpts{
        Name: "clientws_connected_clients",
        Help: "Voice clients currently connected",
    })

    metricConnections = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "clientws_connections_total",
        Help: "Voice client connection attempts by result",
    }, []string{"result"})

    metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
        Name: "clientws_messages_total",
        Help: "Messages received from voice clients by type",
    }, []string{"type"})

    metricSendErrors = promauto.NewCounter(prometheus.CounterOpts{
        Name: "clientws_send_errors_total",
        Help: "Failed writes to voice clients",
    })
)
