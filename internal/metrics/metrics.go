package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tars_launcher"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "launches_total",
			Help:      "Number of successful agent launches.",
		}, []string{"provider"},
	)
	launchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "launch_failures_total",
			Help:      "Launches that failed before the process was spawned.",
		},
	)
	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "exits_total",
			Help:      "Tracked processes leaving the table, by reason (exited, error, killed).",
		}, []string{"reason"},
	)
	running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "running",
			Help:      "Tracked processes currently in the live table.",
		},
	)
	urlsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "urls_detected_total",
			Help:      "Loopback URLs detected in agent output.",
		},
	)
	logLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "log_entries_total",
			Help:      "Log entries published to front ends, by kind.",
		}, []string{"kind"},
	)
)

// Register adds the collectors to r. Every registry passed in gets them, so
// several apps in one process each serve full metrics; registering twice into
// the same registry is not an error.
func Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{launches, launchFailures, exits, running, urlsDetected, logLines}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics gathered from g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Helpers below no-op until Register has succeeded.

func IncLaunch(provider string) {
	if regOK.Load() {
		launches.WithLabelValues(provider).Inc()
	}
}

func IncLaunchFailure() {
	if regOK.Load() {
		launchFailures.Inc()
	}
}

func IncExit(reason string) {
	if regOK.Load() {
		exits.WithLabelValues(reason).Inc()
	}
}

func SetRunning(n int) {
	if regOK.Load() {
		running.Set(float64(n))
	}
}

func IncURLDetected() {
	if regOK.Load() {
		urlsDetected.Inc()
	}
}

func IncLogEntry(kind string) {
	if regOK.Load() {
		logLines.WithLabelValues(kind).Inc()
	}
}
