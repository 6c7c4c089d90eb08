package protocol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "checkins_total",
			Help:      "Total check-in attempts by platform and result",
		},
		[]string{"platform", "result"},
	)

	checkinDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "steward",
			Name:      "checkin_duration_seconds",
			Help:      "Duration of check-in attempts in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~51s
		},
		[]string{"platform"},
	)

	balanceQuota = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "steward",
			Name:      "balance_quota_dollars",
			Help:      "Last observed available balance per account",
		},
		[]string{"platform", "account"},
	)

	balanceUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "steward",
			Name:      "balance_used_dollars",
			Help:      "Last observed consumed balance per account",
		},
		[]string{"platform", "account"},
	)
)
