package campaign

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the application's own prometheus registry, kept separate
// from the default registry so the /metrics endpoint only exposes
// campaign metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	entitiesListed = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "campaign",
		Name:      "entities_listed",
		Help:      "Entities fetched from the record store in the last pass",
	})

	eligibleTotal = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "campaign",
		Name:      "eligible_total",
		Help:      "Entities found eligible in the last pass, by path",
	}, []string{"path"})

	contactsAttempted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campaign",
		Name:      "contacts_attempted_total",
		Help:      "Contact attempts placed, by classification",
	}, []string{"classification"})

	contactsFailed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campaign",
		Name:      "contacts_failed_total",
		Help:      "Contact attempts that did not produce an outcome, by classification",
	}, []string{"classification"})

	duplicatesSkipped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "campaign",
		Name:      "duplicate_contacts_skipped_total",
		Help:      "Result writes rejected by the one-contact-per-day guard",
	})

	persistFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "campaign",
		Name:      "persist_failures_total",
		Help:      "Result writes that exhausted retries and fell back to the reduced write",
	})

	passDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "campaign",
		Name:      "pass_duration_seconds",
		Help:      "Wall-clock duration of a full campaign pass",
		Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
	})
)

func resetPassGauges() {
	entitiesListed.Set(0)
	eligibleTotal.Reset()
}
