package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricLinksIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "humanpass_links_issued_total",
		Help: "Links minted, excluding reuse hits.",
	})
	metricLinksReused = promauto.NewCounter(prometheus.CounterOpts{
		Name: "humanpass_links_reused_total",
		Help: "Issue requests answered with an existing fresh link.",
	})
	metricRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "humanpass_rate_limited_total",
		Help: "Requests denied by the sliding-window limiter.",
	}, []string{"operation"})
	metricFraudDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "humanpass_fraud_detected_total",
		Help: "Verification attempts flagged by the referer check.",
	})
	metricSyncPublishes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "humanpass_sync_publishes_total",
		Help: "Links relayed through the cross-device mailbox.",
	})
)
