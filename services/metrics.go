package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "operations_total",
		Help:      "Ledger operations by name and outcome code.",
	}, []string{"operation", "outcome"})

	commissionsApproved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "commissions_approved_total",
		Help:      "Commissions moved from PENDING to APPROVED by the sweep.",
	})

	walletCreditsMB = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "wallet_credits_mb_total",
		Help:      "Megabytes credited to data wallets.",
	})
)

func observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = ReasonCode(err)
	}
	ledgerOperations.WithLabelValues(operation, outcome).Inc()
}
