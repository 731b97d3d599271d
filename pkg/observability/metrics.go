package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parley"

// Metrics holds the collectors fed by Hooks.
type Metrics struct {
	Received     prometheus.Counter
	Skipped      *prometheus.CounterVec
	Parsed       *prometheus.CounterVec
	Expired      prometheus.Counter
	Sent         *prometheus.CounterVec
	PollFailures prometheus.Counter
	PollDuration prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Received: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages accepted by the pipeline.",
		}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_skipped_total",
			Help:      "Inbound messages dropped before processing.",
		}, []string{"reason"}),
		Parsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_parsed_total",
			Help:      "Replies that satisfied a pending expectation.",
		}, []string{"kind"}),
		Expired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expectations_expired_total",
			Help:      "Expectations reaped by the sweep.",
		}),
		Sent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound parts delivered by channel.",
		}, []string{"channel"}),
		PollFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_failures_total",
			Help:      "Poll cycles skipped because the fetch failed.",
		}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of poll cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnMessageReceived: func(context.Context, *domain.MessageReceived) {
			m.Received.Inc()
		},
		OnReplyParsed: func(_ context.Context, e *domain.ReplyParsed) {
			m.Parsed.WithLabelValues(string(e.Kind)).Inc()
		},
		OnMessageSent: func(_ context.Context, e *domain.MessageSent) {
			m.Sent.WithLabelValues(string(e.Channel)).Inc()
		},
		OnExpectationExpired: func(context.Context, *domain.ExpectationExpired) {
			m.Expired.Inc()
		},
		OnMessageSkipped: func(_ context.Context, _ domain.InboundMessage, reason domain.SkipReason) {
			m.Skipped.WithLabelValues(string(reason)).Inc()
		},
		OnPollCompleted: func(_ context.Context, r *domain.PollReport) {
			m.PollDuration.Observe(r.Duration.Seconds())
			if r.Err != nil {
				m.PollFailures.Inc()
			}
		},
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
