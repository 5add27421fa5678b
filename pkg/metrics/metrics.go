package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github/martinmaurice/quota/pkg/enum"
)

const namespace = "quota"

// Recorder exposes rate limiter decisions as Prometheus collectors.
type Recorder struct {
	Decisions          *prometheus.CounterVec
	StoreErrors        *prometheus.CounterVec
	RetryAfterFallback *prometheus.CounterVec
}

func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	decisions, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Rate limit decisions partitioned by action and result.",
	}, []string{"action", "result"})
	if err != nil {
		return nil, err
	}

	storeErrors, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_errors_total",
		Help:      "Counter store failures partitioned by operation.",
	}, []string{"op"})
	if err != nil {
		return nil, err
	}

	fallbacks, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retry_after_fallbacks_total",
		Help:      "Denials whose retry-after fell back to the full window.",
	}, []string{"action"})
	if err != nil {
		return nil, err
	}

	return &Recorder{
		Decisions:          decisions,
		StoreErrors:        storeErrors,
		RetryAfterFallback: fallbacks,
	}, nil
}

// registerCounterVec reuses a collector registered by an earlier call.
func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register %s collector: %w", opts.Name, err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing %s collector has unexpected type %T", opts.Name, already.ExistingCollector)
		}
		return existing, nil
	}
	return vec, nil
}

func (r *Recorder) ObserveDecision(action enum.Action, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	r.Decisions.WithLabelValues(action.String(), result).Inc()
}

func (r *Recorder) ObserveStoreError(op string) {
	r.StoreErrors.WithLabelValues(op).Inc()
}

func (r *Recorder) ObserveRetryAfterFallback(action enum.Action) {
	r.RetryAfterFallback.WithLabelValues(action.String()).Inc()
}
