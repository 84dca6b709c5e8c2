// Package metrics exposes prometheus collectors registered on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PackagesRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recebi_packages_registered_total",
		Help: "Total number of packages registered at the reception.",
	})

	PickupsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recebi_pickups_confirmed_total",
		Help: "Total number of package pickups confirmed by residents.",
	})

	PackagesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recebi_packages_deleted_total",
		Help: "Total number of packages removed by managers.",
	})

	HistoryEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recebi_history_entries_total",
		Help: "Total number of committed history entries by category.",
	},
		[]string{"category"},
	)

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recebi_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recebi_logins_total",
		Help: "Login attempts by outcome.",
	},
		[]string{"outcome"},
	)

	FeedPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recebi_feed_published_total",
		Help: "History events delivered to the message broker.",
	})

	FeedFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recebi_feed_failures_total",
		Help: "History events that failed to reach the message broker.",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recebi_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status code.",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"method", "route", "code"},
	)
)
