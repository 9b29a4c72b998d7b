// Package metrics exposes the service's Prometheus instruments.
//
// All Recorder methods are nil-safe so components can be built without a
// recorder in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/target/cqrs-monitor/internal/errors"
)

const namespace = "cqrs_monitor"

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Recorder owns a private registry and the instruments registered on it.
type Recorder struct {
	registry *prometheus.Registry

	bootstrapAttempts    *prometheus.CounterVec
	roleChanges          *prometheus.CounterVec
	sessionOps           *prometheus.CounterVec
	guardDecisions       *prometheus.CounterVec
	upstreamRequests     *prometheus.CounterVec
	upstreamLatency      *prometheus.HistogramVec
	subscriptionMessages *prometheus.CounterVec
	streamClients        prometheus.Gauge
}

// NewRecorder builds a Recorder with Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		bootstrapAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bootstrap_attempts_total",
			Help:      "First-admin bootstrap attempts by outcome",
		}, []string{"result"}),
		roleChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_changes_total",
			Help:      "Role-set requests by target role and outcome",
		}, []string{"role", "result"}),
		sessionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_operations_total",
			Help:      "Session operations by kind and outcome",
		}, []string{"op", "result"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Route guard decisions by gate and phase",
		}, []string{"gate", "phase"}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "GraphQL upstream requests by view and outcome",
		}, []string{"view", "result"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "GraphQL upstream request latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"view"}),
		subscriptionMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_messages_total",
			Help:      "Messages received from upstream subscriptions by feed and outcome",
		}, []string{"feed", "result"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected websocket stream clients",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.bootstrapAttempts,
		r.roleChanges,
		r.sessionOps,
		r.guardDecisions,
		r.upstreamRequests,
		r.upstreamLatency,
		r.subscriptionMessages,
		r.streamClients,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ResultOf labels an outcome by its application error code.
func ResultOf(err error) string {
	if err == nil {
		return ResultSuccess
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return ResultError
}

// Bootstrap counts a first-admin attempt.
func (r *Recorder) Bootstrap(err error) {
	if r == nil {
		return
	}
	r.bootstrapAttempts.WithLabelValues(ResultOf(err)).Inc()
}

// RoleChange counts a role-set request.
func (r *Recorder) RoleChange(role string, err error) {
	if r == nil {
		return
	}
	r.roleChanges.WithLabelValues(role, ResultOf(err)).Inc()
}

// Session counts a session operation (sign_in, refresh, sign_out, resolve).
func (r *Recorder) Session(op string, err error) {
	if r == nil {
		return
	}
	r.sessionOps.WithLabelValues(op, ResultOf(err)).Inc()
}

// Guard counts a route guard decision.
func (r *Recorder) Guard(gate, phase string) {
	if r == nil {
		return
	}
	r.guardDecisions.WithLabelValues(gate, phase).Inc()
}

// Upstream records one upstream request.
func (r *Recorder) Upstream(view string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.upstreamRequests.WithLabelValues(view, ResultOf(err)).Inc()
	r.upstreamLatency.WithLabelValues(view).Observe(d.Seconds())
}

// SubscriptionMessage counts one subscription payload.
func (r *Recorder) SubscriptionMessage(feed string, err error) {
	if r == nil {
		return
	}
	r.subscriptionMessages.WithLabelValues(feed, ResultOf(err)).Inc()
}

// StreamClients adjusts the connected stream client gauge by delta.
func (r *Recorder) StreamClients(delta int) {
	if r == nil {
		return
	}
	r.streamClients.Add(float64(delta))
}
