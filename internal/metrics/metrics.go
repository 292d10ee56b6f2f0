package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)

	// Bookings counts CreateBooking outcomes (created, insufficient_vehicles, ...).
	Bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bookings_total", Help: "Booking requests by outcome."},
		[]string{"outcome"},
	)
	// Assignments counts dispatch mutations by action, method and outcome.
	Assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trip_assignments_total", Help: "Dispatch mutations by action, method and outcome."},
		[]string{"action", "method", "outcome"},
	)
	AvailabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "availability_checks_total", Help: "Availability checks by result."},
		[]string{"result"},
	)
	LockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "allocation_lock_wait_seconds", Help: "Time spent acquiring allocation locks.", Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5}},
	)
	NotificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "notifications_dropped_total", Help: "Notifications dropped because the queue was full."},
	)
)

var regOnce sync.Once

// RegisterDefault registers collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Bookings, Assignments, AvailabilityChecks, LockWait, NotificationsDropped)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Outcome labels an error result for counters.
func Outcome(err error, code func(error) string) string {
	if err == nil {
		return "ok"
	}
	if c := code(err); c != "" {
		return c
	}
	return "error"
}
