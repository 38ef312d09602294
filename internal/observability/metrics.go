package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "personid",
		Name:      "faces_detected_total",
		Help:      "Total number of faces returned by the face service",
	}, []string{"pipeline"})

	FacesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "personid",
		Name:      "faces_rejected_total",
		Help:      "Total number of faces rejected by the quality filter",
	}, []string{"quality"})

	FacesEnrolled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "personid",
		Name:      "faces_enrolled_total",
		Help:      "Total number of face samples added to a person group",
	})

	EnrollmentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "personid",
		Name:      "enrollment_failures_total",
		Help:      "Total number of face samples the face service refused",
	})

	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "personid",
		Name:      "training_runs_total",
		Help:      "Total number of training runs by outcome",
	}, []string{"outcome"})

	TrainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "personid",
		Name:      "training_wait_seconds",
		Help:      "Time spent waiting for remote training to reach a terminal state",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	SegmentsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "personid",
		Name:      "segments_extracted_total",
		Help:      "Total number of person sub-images uploaded by the segmenter",
	})

	IdentificationMatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "personid",
		Name:      "identification_matches_total",
		Help:      "Total number of verified identification matches",
	})

	RemoteCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "personid",
		Name:      "remote_call_duration_seconds",
		Help:      "Duration of calls to the face and segmentation services",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"service", "op", "status"})
)
