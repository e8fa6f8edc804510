package fanout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/echotree/echotree/internal/build"
)

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: build.ProjectName,
		Name:      "subscribers",
		Help:      "The number of connected subscribers.",
	})

	subscriberWriteFailuresCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "subscriber_write_failures_total",
		Help:      "The total number of artifact deliveries that failed and closed their session.",
	})

	deliveriesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "artifact_deliveries_total",
		Help:      "The total number of artifacts written to subscribers, by kind (initial or update).",
	}, []string{"kind"})
)
