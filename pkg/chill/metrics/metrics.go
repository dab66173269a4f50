// Package metrics exposes the server's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RuleDenials counts evaluator denials surfaced to clients, by
	// collection.
	RuleDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chill_rule_denials_total",
		Help: "Access control denials by collection.",
	}, []string{"collection"})

	// HandlerRuns counts reaction handler invocations by trigger and
	// outcome (ok, retry, failed).
	HandlerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chill_engine_handler_runs_total",
		Help: "Reaction handler invocations by trigger and outcome.",
	}, []string{"trigger", "outcome"})

	// PushSends counts per-token notification deliveries by outcome.
	PushSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chill_push_sends_total",
		Help: "Push notification sends by outcome.",
	}, []string{"outcome"})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
