package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections_active",
		Help: "Currently open WebSocket connections",
	})

	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_connections_total",
		Help: "Total WebSocket connections accepted",
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_sessions_active",
		Help: "Streaming sessions holding buffered audio",
	})

	Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_messages_total",
		Help: "Inbound messages by type",
	}, []string{"type"})

	AudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_audio_chunks_total",
		Help: "Stream chunks appended to session buffers",
	})

	AudioSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_audio_seconds_total",
		Help: "Seconds of audio submitted to the engine",
	}, []string{"mode"})

	TranscriptionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_transcription_duration_seconds",
		Help:    "Engine call wall time, excluding gate wait",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"mode", "engine"})

	RealTimeFactor = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_real_time_factor",
		Help:    "Audio duration divided by processing time",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"mode"})

	GateWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_gate_waiting",
		Help: "Transcription requests queued for an engine slot",
	})

	GateInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_gate_inflight",
		Help: "Transcription requests holding an engine slot",
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Errors reported to clients by kind",
	}, []string{"kind"})

	ArtifactCleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_artifact_cleanup_failures_total",
		Help: "Temporary audio artifacts that could not be removed",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_published_total",
		Help: "Transcript events published by topic and status",
	}, []string{"topic", "status"})
)
