// Package metrics exposes Prometheus collectors for the request pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "peatio"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder owns the collectors of one client. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	retries   *prometheus.CounterVec
	errors    *prometheus.CounterVec
	limitWait *prometheus.HistogramVec
	gatherer  prometheus.Gatherer
}

// New creates a Recorder and registers it on reg. A nil reg gets a private registry.
func New(reg prometheus.Registerer) (*Recorder, error) {
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	r := &Recorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests sent to the exchange by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Round-trip time of exchange requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retried public reads by operation.",
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed requests by error type.",
		}, []string{"type"}),
		limitWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting on the rate limiter.",
			Buckets:   []float64{.001, .01, .1, .25, .5, 1, 2, 5},
		}, []string{"limiter"}),
		gatherer: gatherer,
	}

	for _, c := range []prometheus.Collector{r.requests, r.latency, r.retries, r.errors, r.limitWait} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveRequest records one finished request.
func (r *Recorder) ObserveRequest(operation, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(operation, outcome).Inc()
	r.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordRetry counts a retried attempt.
func (r *Recorder) RecordRetry(operation string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(operation).Inc()
}

// RecordError counts a failure by error type.
func (r *Recorder) RecordError(errorType string) {
	if r == nil {
		return
	}
	r.errors.WithLabelValues(errorType).Inc()
}

// ObserveWait records time spent in a limiter ("account" or "public").
func (r *Recorder) ObserveWait(limiter string, d time.Duration) {
	if r == nil {
		return
	}
	r.limitWait.WithLabelValues(limiter).Observe(d.Seconds())
}

// Handler serves the registry the Recorder was created with.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
