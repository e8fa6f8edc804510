package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/echotree/echotree/internal/build"
)

var (
	artifactsPublishedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "artifacts_published_total",
		Help:      "The total number of published artifacts, by source (word or artifact).",
	}, []string{"source"})

	submissionsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "submissions_total",
		Help:      "The total number of processed submissions, by outcome.",
	}, []string{"outcome"})

	treeBuildDurationHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace:                       build.ProjectName,
		Name:                            "tree_build_duration_ms",
		Help:                            "The time (in ms) it took to build a word tree.",
		Buckets:                         []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: time.Hour,
	})
)
