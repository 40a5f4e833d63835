package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayAttempts counts single HTTP attempts against the provider by result.
	GatewayAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_gateway_attempts_total",
		Help: "Provider HTTP attempts by result",
	}, []string{"result"}) // ok, rate_limited, provider_error, transport_error, invalid_response

	GatewayRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_gateway_retries_total",
		Help: "Backoff retries issued against the provider",
	})

	GatewayLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_gateway_request_duration_seconds",
		Help:    "End-to-end provider call latency including backoff waits",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_submissions_total",
		Help: "Prompt submissions by mode and outcome",
	}, []string{"mode", "outcome"})

	StoreAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_store_appends_total",
		Help: "Interaction store appends by record type and result",
	}, []string{"type", "result"})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_store_subscriptions_active",
		Help: "Live history subscriptions",
	})
)
