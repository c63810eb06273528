// Package metrics exposes Prometheus counters for discovery probes, sync
// runs and board writes. They are served on /metrics in serve mode.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tendersync",
		Name:      "probes_total",
		Help:      "Discovery probes by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	discoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tendersync",
		Name:      "discoveries_total",
		Help:      "Discovery runs by the strategy that produced the listing (none when not found).",
	}, []string{"strategy"})

	cards = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tendersync",
		Name:      "cards_total",
		Help:      "Board card creations by region and result.",
	}, []string{"region", "result"})

	runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tendersync",
		Name:      "runs_total",
		Help:      "Sync runs by outcome.",
	}, []string{"outcome"})

	lastCreated = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tendersync",
		Name:      "last_run_created_cards",
		Help:      "Cards created by the most recent run.",
	})
)

// Probe outcomes.
const (
	ProbeHit     = "hit"
	ProbeError   = "error"
	ProbeNotJSON = "not_json"
	ProbeEmpty   = "empty"
)

// Run outcomes.
const (
	RunNoListing  = "no_listing"
	RunNoEligible = "no_eligible"
	RunSynced     = "synced"
	RunSkipped    = "skipped"
	RunFailed     = "failed"
)

// ObserveProbe counts one probe.
func ObserveProbe(strategy, outcome string) {
	probes.WithLabelValues(strategy, outcome).Inc()
}

// ObserveDiscovery counts one discovery run; strategy is "" when nothing was found.
func ObserveDiscovery(strategy string) {
	if strategy == "" {
		strategy = "none"
	}
	discoveries.WithLabelValues(strategy).Inc()
}

// ObserveCard counts one card creation attempt.
func ObserveCard(region string, ok bool) {
	result := "created"
	if !ok {
		result = "failed"
	}
	cards.WithLabelValues(region, result).Inc()
}

// ObserveRun counts one finished run and records how many cards it created.
func ObserveRun(outcome string, created int) {
	runs.WithLabelValues(outcome).Inc()
	lastCreated.Set(float64(created))
}
