package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the business counters exported by the services.
type Metrics struct {
	listingsCreated   *prometheus.CounterVec
	reviews           *prometheus.CounterVec
	reports           *prometheus.CounterVec
	companionMessages *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered, which is what tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		listingsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_listings_created_total",
				Help: "Listings created, by kind.",
			},
			[]string{"kind"},
		),
		reviews: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_reviews_total",
				Help: "Reviews accepted, by listing kind.",
			},
			[]string{"kind"},
		),
		reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_reports_total",
				Help: "First reports recorded, by listing kind and reason.",
			},
			[]string{"kind", "reason"},
		),
		companionMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "companion_messages_total",
				Help: "Companion messages handled, by outcome.",
			},
			[]string{"outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.listingsCreated, m.reviews, m.reports, m.companionMessages)
	}
	return m
}
