package render

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_renders_total",
		Help: "Render requests by outcome",
	}, []string{"result"})

	metricRenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "replay_render_seconds",
		Help:    "Wall time of a full replay-and-encode render",
		Buckets: prometheus.ExponentialBuckets(0.5, 1.8, 12),
	})
)
