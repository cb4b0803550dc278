// Package metrics exports credit and streak counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters.
const (
	OutcomeOK              = "ok"
	OutcomeInsufficient    = "insufficient"
	OutcomeError           = "error"
	OutcomeAlreadyUnlocked = "already_unlocked"
	OutcomeWaived          = "waived"
	OutcomeRefreshed       = "refreshed"
	OutcomeSkipped         = "skipped"
	OutcomeFailed          = "failed"
	OutcomeNoActivity      = "no_activity"
)

// Recorder holds the registered collectors. A nil Recorder records nothing.
type Recorder struct {
	gatherer        prometheus.Gatherer
	spends          *prometheus.CounterVec
	creditsSpent    *prometheus.CounterVec
	unlocks         *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	streakUpdates   *prometheus.CounterVec
}

// NewRecorder registers the collectors on reg. Collectors already registered under the
// same name are reused so repeated construction in one process is harmless.
func NewRecorder(namespace string, reg *prometheus.Registry) (*Recorder, error) {
	if namespace == "" {
		namespace = "credits"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{gatherer: reg}

	var err error
	if r.spends, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spend_requests_total",
		Help:      "Spend attempts by action and outcome.",
	}, "action", "outcome"); err != nil {
		return nil, err
	}
	if r.creditsSpent, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credits_spent_total",
		Help:      "Credits deducted by action.",
	}, "action"); err != nil {
		return nil, err
	}
	if r.unlocks, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unlock_requests_total",
		Help:      "Early access unlock requests by outcome.",
	}, "outcome"); err != nil {
		return nil, err
	}
	if r.refreshes, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "monthly_refresh_users_total",
		Help:      "Users processed by the monthly refresh by outcome.",
	}, "outcome"); err != nil {
		return nil, err
	}
	if r.streakUpdates, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "streak_updates_total",
		Help:      "Streak update calls by outcome.",
	}, "outcome"); err != nil {
		return nil, err
	}

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "monthly_refresh_duration_seconds",
		Help:      "Latency of one monthly refresh batch.",
		Buckets:   prometheus.DefBuckets,
	})
	if errRegister := reg.Register(histogram); errRegister != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(errRegister, &are) {
			return nil, fmt.Errorf("metrics: register refresh histogram: %w", errRegister)
		}
		existing, ok := are.ExistingCollector.(prometheus.Histogram)
		if !ok {
			return nil, fmt.Errorf("metrics: register refresh histogram: %w", errRegister)
		}
		histogram = existing
	}
	r.refreshDuration = histogram
	return r, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if errRegister := reg.Register(vec); errRegister != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(errRegister, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("metrics: register %s: %w", opts.Name, errRegister)
	}
	return vec, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// RecordSpend counts a spend attempt and, on success, the credits it took.
func (r *Recorder) RecordSpend(action, outcome string, credits int64) {
	if r == nil {
		return
	}
	r.spends.WithLabelValues(action, outcome).Inc()
	if outcome == OutcomeOK && credits > 0 {
		r.creditsSpent.WithLabelValues(action).Add(float64(credits))
	}
}

// RecordUnlock counts an unlock request.
func (r *Recorder) RecordUnlock(outcome string) {
	if r == nil {
		return
	}
	r.unlocks.WithLabelValues(outcome).Inc()
}

// RecordRefresh counts one batch's per-user outcomes and its duration.
func (r *Recorder) RecordRefresh(refreshed, skipped, failed int, duration time.Duration) {
	if r == nil {
		return
	}
	r.refreshes.WithLabelValues(OutcomeRefreshed).Add(float64(refreshed))
	r.refreshes.WithLabelValues(OutcomeSkipped).Add(float64(skipped))
	r.refreshes.WithLabelValues(OutcomeFailed).Add(float64(failed))
	r.refreshDuration.Observe(duration.Seconds())
}

// RecordStreak counts a streak update call.
func (r *Recorder) RecordStreak(outcome string) {
	if r == nil {
		return
	}
	r.streakUpdates.WithLabelValues(outcome).Inc()
}
