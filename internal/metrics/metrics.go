package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector agrupa las metricas Prometheus del servicio. Un Collector nil no registra nada.
type Collector struct {
	registry *prometheus.Registry

	InitAttempts       *prometheus.CounterVec
	RecordingsStarted  prometheus.Counter
	RecordingDeadlines prometheus.Counter
	AnalysisFallbacks  prometheus.Counter
	ResponsesCaptured  prometheus.Counter
	SessionsFinalized  prometheus.Counter
	RankingsServed     prometheus.Counter
	RankingDuration    prometheus.Histogram
}

// NewCollector crea un registry propio para evitar registros duplicados entre tests.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		InitAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_init_attempts_total",
			Help:      "Voice capability initialization attempts by outcome",
		}, []string{"outcome"}),
		RecordingsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_recordings_started_total",
			Help:      "Recordings opened against the voice capability",
		}),
		RecordingDeadlines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_recording_deadlines_total",
			Help:      "Recordings terminated by the hard deadline",
		}),
		AnalysisFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_analysis_fallbacks_total",
			Help:      "Analyses degraded to neutral defaults",
		}),
		ResponsesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_responses_captured_total",
			Help:      "Responses written into intake sessions",
		}),
		SessionsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_sessions_finalized_total",
			Help:      "Intake sessions finalized into subject profiles",
		}),
		RankingsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_rankings_total",
			Help:      "Ranking requests served",
		}),
		RankingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_ranking_duration_seconds",
			Help:      "Ranking duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		c.InitAttempts,
		c.RecordingsStarted,
		c.RecordingDeadlines,
		c.AnalysisFallbacks,
		c.ResponsesCaptured,
		c.SessionsFinalized,
		c.RankingsServed,
		c.RankingDuration,
	)
	return c
}

// Handler expone el registry en formato Prometheus.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordInit(outcome string) {
	if c == nil {
		return
	}
	c.InitAttempts.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordRecordingStarted() {
	if c == nil {
		return
	}
	c.RecordingsStarted.Inc()
}

func (c *Collector) RecordRecordingDeadline() {
	if c == nil {
		return
	}
	c.RecordingDeadlines.Inc()
}

func (c *Collector) RecordAnalysisFallback() {
	if c == nil {
		return
	}
	c.AnalysisFallbacks.Inc()
}

func (c *Collector) RecordResponseCaptured() {
	if c == nil {
		return
	}
	c.ResponsesCaptured.Inc()
}

func (c *Collector) RecordSessionFinalized() {
	if c == nil {
		return
	}
	c.SessionsFinalized.Inc()
}

func (c *Collector) RecordRanking(d time.Duration) {
	if c == nil {
		return
	}
	c.RankingsServed.Inc()
	c.RankingDuration.Observe(d.Seconds())
}
