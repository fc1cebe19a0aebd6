// Package metrics holds the wallet's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	AwardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucm_awards_total",
		Help: "Reward attempts by action and outcome",
	}, []string{"action", "result"})

	ChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucm_charges_total",
		Help: "Debit attempts by action and outcome",
	}, []string{"action", "result"})

	ReferralsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucm_referrals_total",
		Help: "Referral attributions by outcome",
	}, []string{"result"})

	MovedAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucm_moved_amount_total",
		Help: "Sum of credited and debited UCM",
	}, []string{"kind"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ucm_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route", "status"})
)

// Moved records amount under kind ("credit" or "debit").
func Moved(kind string, amount decimal.Decimal) {
	f, _ := amount.Float64()
	MovedAmount.WithLabelValues(kind).Add(f)
}
