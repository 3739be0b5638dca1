package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "formengine"

// Prometheus exports engine events as counters.
type Prometheus struct {
	submissions       *prometheus.CounterVec
	submissionErrors  *prometheus.CounterVec
	validationErrors  *prometheus.CounterVec
	capacityRejects   *prometheus.CounterVec
	paymentTransition *prometheus.CounterVec
	pollAttempts      *prometheus.CounterVec
}

// NewPrometheus registers the engine counters on reg. A nil reg uses the
// default registerer.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &Prometheus{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_dispatched_total",
			Help:      "Form submissions sent to the backend.",
		}, []string{"form"}),
		submissionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_failed_total",
			Help:      "Form submissions rejected or lost in transit.",
		}, []string{"form", "reason"}),
		validationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Field validation failures by rule.",
		}, []string{"rule"}),
		capacityRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_rejections_total",
			Help:      "Selections refused because a resource was full.",
		}, []string{"resource"}),
		paymentTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_transitions_total",
			Help:      "Payment lifecycle state changes.",
		}, []string{"from", "to"}),
		pollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_poll_attempts_total",
			Help:      "Payment status polls by outcome.",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{
		p.submissions,
		p.submissionErrors,
		p.validationErrors,
		p.capacityRejects,
		p.paymentTransition,
		p.pollAttempts,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("telemetry: register collector: %w", err)
		}
	}
	return p, nil
}

func (p *Prometheus) SubmissionDispatched(formID string) {
	p.submissions.WithLabelValues(formID).Inc()
}

func (p *Prometheus) SubmissionFailed(formID, reason string) {
	p.submissionErrors.WithLabelValues(formID, reason).Inc()
}

func (p *Prometheus) ValidationFailed(rule string) {
	p.validationErrors.WithLabelValues(rule).Inc()
}

func (p *Prometheus) CapacityRejected(resource string) {
	p.capacityRejects.WithLabelValues(resource).Inc()
}

func (p *Prometheus) PaymentTransition(from, to string) {
	p.paymentTransition.WithLabelValues(from, to).Inc()
}

func (p *Prometheus) PollAttempt(outcome string) {
	p.pollAttempts.WithLabelValues(outcome).Inc()
}

// Handler serves the metrics gathered by g in the exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
