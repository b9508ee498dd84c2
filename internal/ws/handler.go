// Package ws serves the transcription protocol over WebSocket connections.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/whisper-gateway/internal/audio"
	"github.com/hubenschmidt/whisper-gateway/internal/events"
	"github.com/hubenschmidt/whisper-gateway/internal/metrics"
	"github.com/hubenschmidt/whisper-gateway/internal/session"
	"github.com/hubenschmidt/whisper-gateway/internal/trace"
	"github.com/hubenschmidt/whisper-gateway/internal/transcribe"
)

const (
	defaultMaxConnections  = 100
	defaultMaxMessageBytes = 50 << 20
	writeTimeout           = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the components shared by all connections.
type HandlerConfig struct {
	Dispatcher        *transcribe.Dispatcher
	Sessions          *session.Manager
	Trace             *trace.Store      // nil disables history
	Events            *events.Publisher // nil disables publishing
	MaxConnections    int
	MaxMessageBytes   int64
	DefaultSampleRate int
	Logger            *slog.Logger
}

// Handler manages WebSocket connections with admission control.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
	log *slog.Logger
}

// NewHandler creates a WebSocket handler with a connection limit.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.DefaultSampleRate <= 0 {
		cfg.DefaultSampleRate = audio.TargetRate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConnections),
		log: cfg.Logger.With("component", "ws"),
	}
}

// connParams are the per-connection defaults taken from the query string.
type connParams struct {
	Engine     string `json:"engine,omitempty"`
	Language   string `json:"language,omitempty"`
	SampleRate int    `json:"sample_rate"`
	RemoteAddr string `json:"remote_addr,omitempty"`
}

func (h *Handler) readParams(r *http.Request) (connParams, error) {
	q := r.URL.Query()
	p := connParams{
		Engine:     q.Get("engine"),
		Language:   q.Get("language"),
		SampleRate: h.cfg.DefaultSampleRate,
		RemoteAddr: r.RemoteAddr,
	}
	if v := q.Get("sample_rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("sample_rate: %w", err)
		}
		if err = audio.CheckRate("", n); err != nil {
			return p, err
		}
		p.SampleRate = n
	}
	return p, nil
}

// ServeHTTP upgrades the connection and serves it until the client leaves.
// Returns 503 if at max concurrent connection capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	params, err := h.readParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(h.cfg.MaxMessageBytes)

	metrics.ConnectionsActive.Inc()
	metrics.ConnectionsTotal.Inc()
	defer metrics.ConnectionsActive.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id := uuid.NewString()
	meta, _ := json.Marshal(params)
	c := &connection{
		id:      id,
		ws:      ws,
		h:       h,
		params:  params,
		log:     h.log.With("session_id", id),
		tracer:  trace.NewTracer(h.cfg.Trace, id, string(meta), h.cfg.Logger),
	}
	defer c.tracer.Close()

	c.log.Info("connection opened", "engine", params.Engine, "language", params.Language, "sample_rate", params.SampleRate)
	c.serve(ctx)
	c.log.Info("connection closed")
}
