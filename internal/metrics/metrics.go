package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Retry outcomes.
const (
	RetrySucceeded = "succeeded"
	RetryFailed    = "failed"
	RetrySkipped   = "skipped"
)

var (
	// FailuresRecorded tracks failure records written to the ledger per stream
	FailuresRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamkeeper_failures_recorded_total",
			Help: "Total number of failed deliveries recorded in the ledger",
		},
		[]string{"stream"},
	)

	// RetriesTotal tracks retry attempts by outcome
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamkeeper_retries_total",
			Help: "Total number of retry attempts",
		},
		[]string{"stream", "result"},
	)

	// LedgerSize tracks the number of failure records after the last retry pass
	LedgerSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamkeeper_ledger_size",
			Help: "Number of failure records in the ledger",
		},
	)

	// MessagesArchived tracks messages moved from streams into the archive
	MessagesArchived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamkeeper_messages_archived_total",
			Help: "Total number of messages archived",
		},
		[]string{"stream"},
	)

	// MessagesRestored tracks messages moved from the archive back to streams
	MessagesRestored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamkeeper_messages_restored_total",
			Help: "Total number of archived messages restored",
		},
		[]string{"stream"},
	)

	// ArchiveErrors tracks archive pipeline failures by stage
	ArchiveErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamkeeper_archive_errors_total",
			Help: "Total number of archive pipeline errors",
		},
		[]string{"stream", "stage"},
	)

	// RetryPassDuration tracks how long a retry-all pass takes
	RetryPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamkeeper_retry_pass_seconds",
			Help:    "Duration of retry-all passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
