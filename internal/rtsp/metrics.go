package rtsp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "requests",
		Namespace: "framecast",
		Help:      "number of control requests answered by the server",
	}, []string{"method", "code"})
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "sessions_active",
		Namespace: "framecast",
		Help:      "number of sessions currently set up",
	})
	droppedReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "dropped_replies",
		Namespace: "framecast",
		Help:      "number of replies the client could not use",
	}, []string{"reason"})
)
