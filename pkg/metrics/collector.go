// Package metrics exposes the Prometheus collectors shared by the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests labeled by route and status code",
		},
		[]string{"route", "code"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transfers_total",
			Help: "Total number of transfer attempts labeled by outcome",
		},
		[]string{"outcome"},
	)
	coinsTransferredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_coins_transferred_total",
			Help: "Total amount of coins moved between holders across all currencies",
		},
	)
	currenciesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_currencies_created_total",
			Help: "Total number of currency creation attempts labeled by outcome",
		},
		[]string{"outcome"},
	)
	membershipSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_syncs_total",
			Help: "Total number of role membership synchronizations labeled by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	membershipChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_changes_total",
			Help: "Total number of membership rows activated or deactivated",
		},
		[]string{"change"},
	)
)

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	command = orUnknown(command)

	botCommandsTotal.WithLabelValues(command, orUnknown(status)).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordRequest counts an API request by its route pattern.
func RecordRequest(route, code string, duration time.Duration) {
	route = orUnknown(route)

	httpRequestsTotal.WithLabelValues(route, orUnknown(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	errorsTotal.WithLabelValues(orUnknown(errType), orUnknown(severity)).Inc()
}

// RecordTransfer counts a transfer attempt; amount is added only on success.
func RecordTransfer(outcome string, amount int64) {
	transfersTotal.WithLabelValues(orUnknown(outcome)).Inc()
	if outcome == "ok" && amount > 0 {
		coinsTransferredTotal.Add(float64(amount))
	}
}

func RecordCurrencyCreated(outcome string) {
	currenciesCreatedTotal.WithLabelValues(orUnknown(outcome)).Inc()
}

// RecordMembershipSync counts a sync and the rows it changed.
func RecordMembershipSync(operation, outcome string, added, removed int) {
	membershipSyncsTotal.WithLabelValues(orUnknown(operation), orUnknown(outcome)).Inc()
	if added > 0 {
		membershipChangesTotal.WithLabelValues("added").Add(float64(added))
	}
	if removed > 0 {
		membershipChangesTotal.WithLabelValues("removed").Add(float64(removed))
	}
}
