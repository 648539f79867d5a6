package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replay_session_appends_total",
		Help: "Total successful session append operations",
	})

	metricAppendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replay_session_append_errors_total",
		Help: "Total session appends that failed the durability protocol",
	})

	metricAppendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "replay_session_append_seconds",
		Help:    "Wall time of a read-modify-write-persist append",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	metricRecoveredReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replay_session_recovered_reads_total",
		Help: "Reads served from the backup file after a corrupt or missing primary",
	})
)
