package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_reservations_total",
			Help: "Total inventory reservation attempts by result",
		},
		[]string{"result"}, // ok, insufficient_inventory, not_found, error
	)

	reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconciliations_total",
			Help: "Total payment reconciliation callbacks by outcome",
		},
		[]string{"outcome"}, // activated, rejected, already_processed, sold_out, error
	)

	checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Total checkout submissions by path and result",
		},
		[]string{"path", "result"}, // path: direct, paid
	)

	emailJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_email_jobs_total",
			Help: "Total ticket email jobs processed by result",
		},
		[]string{"result"},
	)
)

// ObserveReservation records the result of a ledger reservation attempt.
func ObserveReservation(result string) {
	reservations.WithLabelValues(result).Inc()
}

// ObserveReconciliation records the outcome of a payment callback.
func ObserveReconciliation(outcome string) {
	reconciliations.WithLabelValues(outcome).Inc()
}

// ObserveCheckout records a checkout submission.
func ObserveCheckout(path, result string) {
	checkouts.WithLabelValues(path, result).Inc()
}

// ObserveEmailJob records a processed email job.
func ObserveEmailJob(result string) {
	emailJobs.WithLabelValues(result).Inc()
}
