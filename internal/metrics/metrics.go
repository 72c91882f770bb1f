// Package metrics exposes prometheus instruments for the metering engine.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels stamped on every instrument.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics captures metering engine health signals.
type Metrics struct {
	quotaChecks       *prometheus.CounterVec
	counterStoreError *prometheus.CounterVec
	ledgerFailures    prometheus.Counter
	usageRecorded     prometheus.Counter
}

// New registers the engine instruments on the given registerer.
func New(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "tokenmeter"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	quotaChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tokenmeter_quota_checks_total",
		Help:        "Quota check decisions by outcome and violated dimension.",
		ConstLabels: constLabels,
	}, []string{"outcome", "dimension"})
	counterStoreError := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tokenmeter_counter_store_errors_total",
		Help:        "Counter store failures degraded to neutral results.",
		ConstLabels: constLabels,
	}, []string{"operation"})
	ledgerFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "tokenmeter_usage_ledger_failures_total",
		Help:        "Durable usage ledger writes dropped after an error.",
		ConstLabels: constLabels,
	})
	usageRecorded := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "tokenmeter_usage_events_recorded_total",
		Help:        "Usage events applied to the rolling counters.",
		ConstLabels: constLabels,
	})

	for _, c := range []prometheus.Collector{quotaChecks, counterStoreError, ledgerFailures, usageRecorded} {
		if err := registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return &Metrics{
		quotaChecks:       quotaChecks,
		counterStoreError: counterStoreError,
		ledgerFailures:    ledgerFailures,
		usageRecorded:     usageRecorded,
	}
}

// ObserveQuotaCheck records one quota decision. dimension is empty for
// allowed checks.
func (m *Metrics) ObserveQuotaCheck(allowed bool, dimension string) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	if dimension == "" {
		dimension = "none"
	}
	m.quotaChecks.WithLabelValues(outcome, dimension).Inc()
}

// ObserveCounterStoreError records a degraded counter store call.
func (m *Metrics) ObserveCounterStoreError(operation string) {
	if m == nil {
		return
	}
	m.counterStoreError.WithLabelValues(operation).Inc()
}

// ObserveLedgerFailure records a dropped durable ledger write.
func (m *Metrics) ObserveLedgerFailure() {
	if m == nil {
		return
	}
	m.ledgerFailures.Inc()
}

// ObserveUsageRecorded records a usage event applied to the counters.
func (m *Metrics) ObserveUsageRecorded() {
	if m == nil {
		return
	}
	m.usageRecorded.Inc()
}
