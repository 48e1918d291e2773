package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "frames_sent",
		Namespace: "framecast",
		Help:      "number of frames emitted by data channels",
	})
	packetsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "packets_sent",
		Namespace: "framecast",
		Help:      "number of data packets emitted",
	}, []string{"type"})
	sendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "send_errors",
		Namespace: "framecast",
		Help:      "number of frames that could not be loaded or sent",
	})
	framesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "frames_delivered",
		Namespace: "framecast",
		Help:      "number of reassembled frames handed to the display",
	})
	packetsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "packets_dropped",
		Namespace: "framecast",
		Help:      "number of received packets or frames dropped",
	}, []string{"reason"})
	bindFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "bind_failures",
		Namespace: "framecast",
		Help:      "number of failed UDP bind attempts",
	})
)
