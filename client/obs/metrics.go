package obs

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	CredentialRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idphoto",
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Credential exchanges against the auth endpoint.",
		},
		[]string{"result"},
	)

	StatusQueries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "idphoto",
			Subsystem: "poller",
			Name:      "status_queries_total",
			Help:      "Task status queries issued.",
		},
	)

	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idphoto",
			Subsystem: "session",
			Name:      "total",
			Help:      "Upload sessions by outcome.",
		},
		[]string{"result"},
	)
	SessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "idphoto",
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Upload session duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)

	ComposeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "idphoto",
			Subsystem: "compositor",
			Name:      "duration_seconds",
			Help:      "Time spent compositing a cutout.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(CredentialRefreshes, StatusQueries, SessionsTotal, SessionDuration, ComposeDuration)
}

// Push sends the default registry to a Prometheus pushgateway. Batch runs end
// before any scrape could happen, so they push instead.
func Push(gatewayURL, job string) error {
	gatewayURL = strings.TrimSpace(gatewayURL)
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
