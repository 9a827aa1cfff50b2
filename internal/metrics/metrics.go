package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "service",
			Name:      "launches_total",
			Help:      "Number of successful service launches.",
		}, []string{"name"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of service stops (graceful or kill).",
		}, []string{"name"},
	)
	serviceStartDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stackup",
			Subsystem: "service",
			Name:      "start_duration_seconds",
			Help:      "Time from fork until the liveness window passed.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	portReclaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "port",
			Name:      "reclaims_total",
			Help:      "Number of port reclaim attempts that found a listener.",
		}, []string{"port"},
	)
	phaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "lifecycle",
			Name:      "phase_transitions_total",
			Help:      "Number of supervisor phase transitions.",
		}, []string{"from", "to"},
	)
	currentPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stackup",
			Subsystem: "lifecycle",
			Name:      "current_phase",
			Help:      "Current supervisor phase (1 = active, 0 = inactive).",
		}, []string{"phase"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serviceLaunches, serviceStops, serviceStartDuration, portReclaims, phaseTransitions, currentPhase}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
// The caller wires the route into its own server.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op until Register is called.

func IncLaunch(name string) {
	if !regOK.Load() {
		return
	}
	serviceLaunches.WithLabelValues(name).Inc()
}

func IncStop(name string) {
	if !regOK.Load() {
		return
	}
	serviceStops.WithLabelValues(name).Inc()
}

func ObserveStartDuration(name string, seconds float64) {
	if !regOK.Load() {
		return
	}
	serviceStartDuration.WithLabelValues(name).Observe(seconds)
}

func IncReclaim(port string) {
	if !regOK.Load() {
		return
	}
	portReclaims.WithLabelValues(port).Inc()
}

func RecordPhaseTransition(from, to string) {
	if !regOK.Load() {
		return
	}
	phaseTransitions.WithLabelValues(from, to).Inc()
	currentPhase.WithLabelValues(from).Set(0)
	currentPhase.WithLabelValues(to).Set(1)
}
