package bootstrap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wafHarvests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "waf_harvests_total",
			Help:      "WAF cookie harvest attempts by result",
		},
		[]string{"result"},
	)

	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Name:      "credential_logins_total",
			Help:      "Credential login attempts by platform and result",
		},
		[]string{"platform", "result"},
	)
)
