package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders placed, by platform.",
		},
		[]string{"platform"},
	)

	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_completed_total",
			Help: "Task executions completed, by task type.",
		},
		[]string{"type"},
	)

	InsufficientBalanceTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "insufficient_balance_total",
			Help: "Operations declined for insufficient balance.",
		},
	)

	WithdrawalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawals_total",
			Help: "Withdrawal requests, by outcome (requested|approved|rejected).",
		},
		[]string{"outcome"},
	)

	StatsRecomputesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stats_recomputes_total",
			Help: "Statistics snapshot recomputations.",
		},
	)
)

// Handler serves the /metrics endpoint.
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(OrdersCreatedTotal)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(InsufficientBalanceTotal)
	prometheus.MustRegister(WithdrawalsTotal)
	prometheus.MustRegister(StatsRecomputesTotal)
}
