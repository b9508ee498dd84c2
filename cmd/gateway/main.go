package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubenschmidt/whisper-gateway/internal/artifact"
	"github.com/hubenschmidt/whisper-gateway/internal/audio"
	"github.com/hubenschmidt/whisper-gateway/internal/engine"
	"github.com/hubenschmidt/whisper-gateway/internal/events"
	"github.com/hubenschmidt/whisper-gateway/internal/session"
	"github.com/hubenschmidt/whisper-gateway/internal/trace"
	"github.com/hubenschmidt/whisper-gateway/internal/transcribe"
	"github.com/hubenschmidt/whisper-gateway/internal/ws"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, closers := buildEngines(ctx, cfg, logger)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	engines := engine.NewRouter(backends, defaultEngine(cfg, backends))

	dispatcher, err := transcribe.New(transcribe.Config{
		Engines:            engines,
		Artifacts:          artifact.NewWriter(cfg.ArtifactDir, artifact.Container(cfg.ArtifactFormat), logger),
		Concurrency:        cfg.TranscribeConcurrency,
		BeamSize:           cfg.BeamSize,
		VADFilter:          cfg.VADFilter,
		SilenceThresholdDB: cfg.SilenceThresholdDB,
		Timeout:            cfg.TranscribeTimeout,
		Logger:             logger,
	})
	if err != nil {
		slog.Error("dispatcher", "error", err)
		os.Exit(1)
	}

	carryover := cfg.Carryover
	if carryover == 0 {
		carryover = session.NoCarryover
	}
	sessions := session.NewManager(session.Config{
		SampleRate: audio.TargetRate,
		Threshold:  cfg.FlushThreshold,
		Carryover:  carryover,
	})

	var traceStore *trace.Store
	if cfg.TraceDBURL != "" {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		traceStore, err = trace.Open(openCtx, cfg.TraceDBURL)
		cancel()
		if err != nil {
			slog.Warn("transcription history disabled", "error", err)
			traceStore = nil
		} else {
			defer traceStore.Close()
			slog.Info("transcription history enabled")
		}
	}

	publisher := events.New(events.Config{
		Brokers:      cfg.KafkaBrokers,
		TopicPartial: cfg.KafkaTopicPartial,
		TopicFinal:   cfg.KafkaTopicFinal,
		TopicFile:    cfg.KafkaTopicFile,
	}, logger)
	defer publisher.Close()

	handler := ws.NewHandler(ws.HandlerConfig{
		Dispatcher:        dispatcher,
		Sessions:          sessions,
		Trace:             traceStore,
		Events:            publisher,
		MaxConnections:    cfg.MaxConnections,
		MaxMessageBytes:   cfg.MaxMessageBytes,
		DefaultSampleRate: cfg.SampleRate,
		Logger:            logger,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		engines:     engines,
		sessions:    sessions,
		concurrency: dispatcher.Concurrency(),
		wsHandler:   handler,
		traceStore:  traceStore,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway starting",
		"addr", addr,
		"engines", engines.Engines(),
		"default_engine", engines.Default(),
		"transcribe_concurrency", dispatcher.Concurrency(),
		"max_connections", cfg.MaxConnections,
		"flush_threshold", cfg.FlushThreshold,
		"carryover", cfg.Carryover,
	)

	if err = srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}

func newLogger(cfg config, w io.Writer) *slog.Logger {
	level, _ := parseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// buildEngines registers every configured backend. The stub is registered
// when forced or when nothing else is configured.
func buildEngines(ctx context.Context, cfg config, logger *slog.Logger) (map[string]engine.Engine, []io.Closer) {
	backends := map[string]engine.Engine{}
	var closers []io.Closer

	if cfg.WhisperServerURL != "" {
		w := engine.NewWhisper(cfg.WhisperServerURL, cfg.WhisperPoolSize, cfg.TranscribeTimeout)
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := w.Warmup(warmCtx); err != nil {
			slog.Warn("whisper warmup", "url", cfg.WhisperServerURL, "error", err)
		}
		cancel()
		backends["whisper"] = w
	}
	if cfg.OpenAIAPIKey != "" || cfg.OpenAIBaseURL != "" {
		backends["openai"] = engine.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.TranscribeTimeout)
	}
	if cfg.GoogleSpeechEnabled {
		g, err := engine.NewGoogle(ctx, cfg.GoogleLanguage, "")
		if err != nil {
			slog.Warn("google speech disabled", "error", err)
		} else {
			backends["google"] = g
			closers = append(closers, g)
		}
	}
	if cfg.StubEngine || len(backends) == 0 {
		if len(backends) == 0 {
			slog.Warn("no transcription backend configured, using stub engine")
		}
		backends["stub"] = engine.NewStub(logger)
	}
	return backends, closers
}

func defaultEngine(cfg config, backends map[string]engine.Engine) string {
	if _, ok := backends[cfg.DefaultEngine]; ok {
		return cfg.DefaultEngine
	}
	for _, name := range []string{"whisper", "openai", "google", "stub"} {
		if _, ok := backends[name]; ok {
			return name
		}
	}
	return ""
}
