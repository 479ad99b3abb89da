// Package metrics defines the Prometheus collectors exported by policykit.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "policykit"

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
	OutcomeStale   = "stale"
	OutcomeCached  = "cached"
)

var (
	// PredicateBuilds counts builder invocations by outcome.
	PredicateBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "predicate_builds_total",
		Help:      "Predicate builds by outcome (ok, invalid).",
	}, []string{"outcome"})

	// CatalogFetches counts reference-data lookups by catalog and outcome.
	CatalogFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_fetches_total",
		Help:      "Catalog lookups by catalog and outcome (ok, cached, stale, error).",
	}, []string{"catalog", "outcome"})

	// PolicySubmissions counts policy submissions by outcome.
	PolicySubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "policy_submissions_total",
		Help:      "Policy submissions by outcome (ok, invalid, error).",
	}, []string{"outcome"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
