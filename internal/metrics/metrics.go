// Package metrics holds the Prometheus collectors reported by fundd.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pickleball_fund"

var (
	PriceFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_fetch_total",
			Help:      "Total number of exchange rate fetches by outcome.",
		},
		[]string{"outcome"}, // outcome: ok/error
	)

	PriceUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_usd",
			Help:      "Last known USD price of the native asset.",
		},
	)

	RelayerSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayer_submissions_total",
			Help:      "Total number of gasless swap submissions by outcome.",
		},
		[]string{"outcome"}, // outcome: submitted/simulated/cached/rejected/error
	)

	RelayerBalanceWei = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relayer_balance_wei",
			Help:      "Native balance of the relayer account.",
		},
	)

	OrderMonitorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_monitor_total",
			Help:      "Total number of settlement order monitors by result.",
		},
		[]string{"result"}, // result: executed/failed/timeout/cancelled
	)

	ProgressFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_fetch_total",
			Help:      "Total number of campaign progress fetches by source.",
		},
		[]string{"source"}, // source: live source name/static/zero
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests by route and status.",
		},
		[]string{"route", "status"},
	)

	registerOnce sync.Once
)

// MustRegister registers every collector with the default registry once.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PriceFetchTotal,
			PriceUSD,
			RelayerSubmissionsTotal,
			RelayerBalanceWei,
			OrderMonitorTotal,
			ProgressFetchTotal,
			HTTPRequestsTotal,
		)
	})
}
