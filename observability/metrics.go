package observability

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"questchain/core/events"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	questMetricsOnce sync.Once
	questRegistry    *QuestMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "questchain",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "questchain",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method and error code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "questchain",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "questchain",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Requests rejected by rate limiting or authentication gates.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records one request. code is the JSON-RPC error code, 0 on success.
func (m *moduleMetrics) Observe(module, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit" or "unauthorized".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// QuestMetrics tracks quest lifecycle activity derived from committed events.
type QuestMetrics struct {
	events  *prometheus.CounterVec
	payouts *prometheus.CounterVec
	winners prometheus.Histogram
}

// Quests returns the lifecycle metrics registry. The registry implements
// events.Emitter so it can be attached to the node's event fan-out.
func Quests() *QuestMetrics {
	questMetricsOnce.Do(func() {
		questRegistry = &QuestMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "questchain",
				Subsystem: "quest",
				Name:      "events_total",
				Help:      "Committed quest events segmented by type.",
			}, []string{"type"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "questchain",
				Subsystem: "quest",
				Name:      "payout_amount_total",
				Help:      "Base units moved out of quest escrow segmented by reason.",
			}, []string{"reason"}),
			winners: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "questchain",
				Subsystem: "quest",
				Name:      "winners_per_resolution",
				Help:      "Winner counts observed when quests resolve.",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 500},
			}),
		}
		prometheus.MustRegister(questRegistry.events, questRegistry.payouts, questRegistry.winners)
	})
	return questRegistry
}

// Emit implements events.Emitter.
func (m *QuestMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return
	}
	m.events.WithLabelValues(eventType).Inc()

	payload, ok := evt.(events.Payload)
	if !ok || payload.Event() == nil {
		return
	}
	attrs := payload.Event().Attributes
	switch eventType {
	case "quest.resolved":
		if n, ok := parseFloat(attrs["winnersCount"]); ok {
			m.winners.Observe(n)
		}
	case "quest.rewards_distributed":
		if n, ok := parseFloat(attrs["amount"]); ok {
			m.payouts.WithLabelValues("winners").Add(n)
		}
	case "quest.pool_refunded":
		if n, ok := parseFloat(attrs["amount"]); ok {
			m.payouts.WithLabelValues(attrs["reason"]).Add(n)
		}
	}
}

func parseFloat(raw string) (float64, bool) {
	v, ok := new(big.Float).SetString(strings.TrimSpace(raw))
	if !ok {
		return 0, false
	}
	f, _ := v.Float64()
	return f, true
}
