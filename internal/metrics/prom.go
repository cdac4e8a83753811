package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Outcomes recorded for each chat request.
const (
	OutcomeOK              = "ok"
	OutcomeConfigError     = "config_error"
	OutcomeBadRequest      = "bad_request"
	OutcomeUpstreamError   = "upstream_error"
	OutcomeTransportError  = "transport_error"
	OutcomeInvalidResponse = "invalid_response"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "chatrelay_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "server"},
		},
		[]string{"date", "sha", "version"},
	)

	chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_chat_requests_total",
			Help: "Chat requests handled, by outcome",
		},
		[]string{"outcome"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_upstream_request_duration_seconds",
			Help:    "Duration of upstream generateContent calls, by HTTP status (0 for transport failures)",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"code"},
	)
)

// NewRegistry returns a registry holding the relay collectors plus the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	Register(reg)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Register registers the relay metrics with r.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, chatRequests, upstreamDuration)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordChat counts one chat request with the given outcome.
func RecordChat(outcome string) {
	chatRequests.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records the duration of one upstream call.
func ObserveUpstream(code int, d time.Duration) {
	upstreamDuration.WithLabelValues(strconv.Itoa(code)).Observe(d.Seconds())
}
