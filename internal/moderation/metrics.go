package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var outcomeCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "linkbot_post_outcomes",
	Help: "Number of posts reaching each moderation outcome",
}, []string{"outcome"})

var sweepCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "linkbot_sweeps",
	Help: "Number of sweeps run, by result",
}, []string{"result"})

var sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "linkbot_sweep_duration_sec",
	Help:    "Duration of a full sweep",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
})

var postErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "linkbot_post_errors",
	Help: "Number of posts skipped after a platform error",
})

var inboxReadCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "linkbot_inbox_messages_read",
	Help: "Number of inbox messages consumed",
})
