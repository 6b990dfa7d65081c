package scorer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	scoreTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskd",
			Subsystem: "scorer",
			Name:      "requests_total",
			Help:      "Scoring requests by mode and outcome (ok or failure kind)",
		},
		[]string{"mode", "outcome"},
	)

	remoteAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskd",
			Subsystem: "remote",
			Name:      "attempts_total",
			Help:      "HTTP attempts against the remote scorer",
		},
		[]string{"outcome"},
	)

	remoteRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "riskd",
			Subsystem: "remote",
			Name:      "retries_total",
			Help:      "Backoff sleeps taken before retrying the remote scorer",
		},
	)

	localProcessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskd",
			Subsystem: "local",
			Name:      "process_duration_seconds",
			Help:      "Wall-clock lifetime of local scorer processes",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"outcome"},
	)

	gateInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riskd",
			Subsystem: "gate",
			Name:      "inflight",
			Help:      "Scoring calls currently holding an admission slot",
		},
	)

	gateWaiting = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riskd",
			Subsystem: "gate",
			Name:      "waiting",
			Help:      "Scoring calls queued for an admission slot",
		},
	)

	processEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskd",
			Subsystem: "local",
			Name:      "process_events_total",
			Help:      "Local scorer lifecycle events by name",
		},
		[]string{"event"},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskd",
			Subsystem: "gate",
			Name:      "backpressure_total",
			Help:      "Total admission rejections (503)",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(scoreTotal, remoteAttemptsTotal, remoteRetriesTotal,
		localProcessDuration, processEventsTotal, gateInflight, gateWaiting, backpressureTotal)
}

// ObserveOutcome counts one finished scoring request.
func ObserveOutcome(mode Mode, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "internal"
		}
	}
	scoreTotal.WithLabelValues(string(mode), outcome).Inc()
}

// incrementBackpressure is called when the gate rejects a caller.
func incrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}
