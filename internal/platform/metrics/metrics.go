package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the governance pipeline. All observer
// methods are nil-safe so services constructed without metrics stay quiet.
type Metrics struct {
	// Consent lifecycle outcomes by scope and action
	ConsentTransitions *prometheus.CounterVec

	// Cohort membership changes by outcome (enrolled, duplicate, no_consent)
	CohortEnrollments *prometheus.CounterVec

	// Distribution of overall data quality scores
	QualityScore prometheus.Histogram

	// Data access validation outcomes (allowed, denied_status, denied_window,
	// denied_elements, denied_format)
	AccessDecisions *prometheus.CounterVec

	// Export packages generated by format
	ExportsGenerated *prometheus.CounterVec
}

// New creates a Metrics instance with all pipeline metrics registered on the
// default registry.
func New() *Metrics {
	return &Metrics{
		ConsentTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_consent_transitions_total",
			Help: "Consent state transitions by scope and action",
		}, []string{"scope", "action"}),

		CohortEnrollments: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_cohort_enrollments_total",
			Help: "Cohort enrollment attempts by outcome",
		}, []string{"outcome"}),

		QualityScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tessera_quality_overall_score",
			Help:    "Distribution of calculated overall data quality scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		AccessDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_access_decisions_total",
			Help: "Partnership data-access validation outcomes",
		}, []string{"outcome"}),

		ExportsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_exports_generated_total",
			Help: "Export packages generated by format",
		}, []string{"format"}),
	}
}

// IncConsentTransition records a consent state transition.
func (m *Metrics) IncConsentTransition(scope, action string) {
	if m != nil {
		m.ConsentTransitions.WithLabelValues(scope, action).Inc()
	}
}

// IncCohortEnrollment records a cohort enrollment attempt outcome.
func (m *Metrics) IncCohortEnrollment(outcome string) {
	if m != nil {
		m.CohortEnrollments.WithLabelValues(outcome).Inc()
	}
}

// ObserveQualityScore records a calculated overall score.
func (m *Metrics) ObserveQualityScore(score float64) {
	if m != nil {
		m.QualityScore.Observe(score)
	}
}

// IncAccessDecision records a data-access validation outcome.
func (m *Metrics) IncAccessDecision(outcome string) {
	if m != nil {
		m.AccessDecisions.WithLabelValues(outcome).Inc()
	}
}

// IncExportGenerated records a generated export package.
func (m *Metrics) IncExportGenerated(format string) {
	if m != nil {
		m.ExportsGenerated.WithLabelValues(format).Inc()
	}
}
