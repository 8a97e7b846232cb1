package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dripgate_requests_total",
		Help: "The total number of faucet requests processed",
	}, []string{"token", "status"})

	TokensDistributed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dripgate_tokens_distributed_total",
		Help: "Total tokens distributed, in whole-token units",
	}, []string{"token"})

	CDPOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dripgate_cdp_operations_total",
		Help: "Total CDP operations submitted",
	}, []string{"operation"})

	TokenBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dripgate_balance",
		Help: "Current faucet wallet balance per token",
	}, []string{"token"})

	CDPCollateralRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dripgate_cdp_collateral_ratio",
		Help: "CDP collateralization ratio as a percentage",
	})

	CDPCollateral = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dripgate_cdp_collateral_amount",
		Help: "CDP collateral amount in NTN",
	})

	CDPDebt = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dripgate_cdp_debt_amount",
		Help: "CDP debt amount in ATN",
	})

	TransactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dripgate_transaction_duration_seconds",
		Help:    "Blockchain transaction duration",
		Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"operation"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dripgate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
