package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	betTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_bets_total",
			Help: "Settled and rejected bets by result",
		},
		[]string{"result"},
	)

	betDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_bet_settle_duration_ms",
			Help:    "Bet settlement duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"result"},
	)

	payoutTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_payout_amount_total",
			Help: "Sum of winning payouts",
		},
	)

	requestDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_requests_total",
			Help: "Deposit and withdrawal requests by kind and decision",
		},
		[]string{"kind", "decision"},
	)

	wageringCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_wagering_completed_total",
			Help: "Wagering requirements completed by source",
		},
		[]string{"source"},
	)

	securityViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_security_violations_total",
			Help: "Recorded security violations by type",
		},
		[]string{"type"},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_notifications_dropped_total",
			Help: "Notifications dropped because the queue was full",
		},
	)

	httpReqTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpReqDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_ms",
			Help:    "HTTP request duration in ms",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"path", "method"},
	)
)

// RecordBet records one settle call. result is "won", "lost" or "rejected".
func RecordBet(result string, started time.Time) {
	betTotal.WithLabelValues(result).Inc()
	betDuration.WithLabelValues(result).Observe(float64(time.Since(started).Milliseconds()))
}

func RecordPayout(amount decimal.Decimal) {
	payoutTotal.Add(amount.InexactFloat64())
}

func RecordDecision(kind, decision string) {
	requestDecisions.WithLabelValues(kind, decision).Inc()
}

func RecordWageringCompleted(source string) {
	wageringCompleted.WithLabelValues(source).Inc()
}

func RecordViolation(kind string) {
	securityViolations.WithLabelValues(kind).Inc()
}

func RecordHTTP(path, method string, status int, started time.Time) {
	httpReqDuration.WithLabelValues(path, method).Observe(float64(time.Since(started).Milliseconds()))
	httpReqTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
}
