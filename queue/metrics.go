package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "queue",
		Name:      "jobs",
		Help:      "Number of jobs in the queue by state.",
	}, []string{"queue", "state"})
	ProcessedJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "queue",
		Name:      "processed_total",
		Help:      "Number of processed job attempts by result.",
	}, []string{"queue", "result"})
	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "queue",
		Name:      "processing_duration_seconds",
		Help:      "Duration of a single job attempt.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"queue"})
)
