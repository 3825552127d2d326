package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpulse_fetch_cycles_total",
			Help: "Fetch cycles by outcome (success, error, stale)",
		},
		[]string{"outcome"},
	)

	FetchCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docpulse_fetch_cycle_duration_seconds",
			Help:    "Duration of a full five-slice fetch cycle",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	RefreshCollapsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docpulse_refresh_collapsed_total",
			Help: "Refresh requests absorbed by an in-flight fetch cycle",
		},
	)

	ChangeNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpulse_change_notifications_total",
			Help: "Change notifications received by dashboards",
		},
		[]string{"channel"},
	)

	SubscriptionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docpulse_subscription_errors_total",
			Help: "Failed change subscriptions",
		},
		[]string{"channel"},
	)

	OpenSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docpulse_open_subscriptions",
			Help: "Change subscriptions currently held by dashboards",
		},
	)

	ActiveDashboards = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docpulse_active_dashboards",
			Help: "Dashboard contexts currently registered",
		},
	)
)

var initOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(FetchCycles)
		prometheus.MustRegister(FetchCycleDuration)
		prometheus.MustRegister(RefreshCollapsed)
		prometheus.MustRegister(ChangeNotifications)
		prometheus.MustRegister(SubscriptionErrors)
		prometheus.MustRegister(OpenSubscriptions)
		prometheus.MustRegister(ActiveDashboards)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
