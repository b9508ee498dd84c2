package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/whisper-gateway/internal/engine"
	"github.com/hubenschmidt/whisper-gateway/internal/session"
	"github.com/hubenschmidt/whisper-gateway/internal/trace"
)

const (
	// defaultTraceSessionLimit is how many trace sessions are returned
	// when the caller omits the ?limit= query parameter.
	defaultTraceSessionLimit = 20
	maxTraceSessionLimit     = 100
)

type deps struct {
	engines     *engine.Router[engine.Engine]
	sessions    *session.Manager
	concurrency int
	wsHandler   http.Handler
	traceStore  *trace.Store
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws", d.wsHandler)
	mux.Handle("/{$}", d.wsHandler)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/engines", d.handleEngines)
	mux.HandleFunc("GET /api/sessions", d.handleSessions)
	registerTraceRoutes(mux, d.traceStore)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (d deps) handleEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"engines":     d.engines.Engines(),
		"default":     d.engines.Default(),
		"concurrency": d.concurrency,
	})
}

func (d deps) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"sessions": d.sessions.Stats()})
}

// pageParams clamps limit to 1..maxTraceSessionLimit and offset to >= 0.
func pageParams(r *http.Request) (limit, offset int) {
	limit = min(max(queryInt(r, "limit", defaultTraceSessionLimit), 1), maxTraceSessionLimit)
	offset = max(queryInt(r, "offset", 0), 0)
	return limit, offset
}

func registerTraceRoutes(mux *http.ServeMux, store *trace.Store) {
	mux.HandleFunc("GET /api/traces/sessions", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		limit, offset := pageParams(r)
		sessions, total, err := store.ListSessions(r.Context(), limit, offset)
		if err != nil {
			slog.Error("list trace sessions", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"sessions": sessions, "total": total})
	})

	mux.HandleFunc("GET /api/traces/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		sess, runs, err := store.GetSession(r.Context(), r.PathValue("id"))
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("get trace session", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"session": sess, "runs": runs})
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
