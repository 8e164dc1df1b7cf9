package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	TokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credentials_tokens_issued_total",
			Help: "Total number of token pairs issued, by flow.",
		},
		[]string{"flow", "result"},
	)

	RefreshTokensBannedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credentials_refresh_tokens_banned_total",
			Help: "Total number of refresh token identifiers added to the ban list.",
		},
		[]string{"reason"},
	)

	ActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credentials_activations_total",
			Help: "Total number of account activation attempts.",
		},
		[]string{"result"},
	)

	EmailsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credentials_emails_published_total",
			Help: "Total number of email requests published to the notification topic.",
		},
		[]string{"result"},
	)

	EmailsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credentials_emails_sent_total",
			Help: "Total number of emails handed to the SMTP relay.",
		},
		[]string{"result"},
	)

	EmailQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "credentials_email_queue_depth",
			Help: "Number of email messages waiting for a free sender.",
		},
	)
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		TokensIssuedTotal,
		RefreshTokensBannedTotal,
		ActivationsTotal,
		EmailsPublishedTotal,
		EmailsSentTotal,
		EmailQueueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// Handler exposes the service registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
