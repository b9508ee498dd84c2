package trace

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxTextLen   = 500
	writeTimeout = 5 * time.Second
)

// runWriter is the subset of Store the tracer needs.
type runWriter interface {
	CreateSession(ctx context.Context, id, metadata string) error
	EndSession(ctx context.Context, id string) error
	InsertRun(ctx context.Context, r Run) error
}

type traceMsg struct {
	kind string // "session_start", "session_end", "run"
	meta string
	run  Run
}

// Tracer writes one connection's history asynchronously via a buffered
// channel. All methods are nil-safe (no-op on nil receiver).
type Tracer struct {
	store     runWriter
	sessionID string
	log       *slog.Logger
	ch        chan traceMsg
	done      chan struct{}
}

// NewTracer opens a session record for sessionID. Must call Close when done.
// A nil store returns a nil Tracer.
func NewTracer(store *Store, sessionID, metadata string, logger *slog.Logger) *Tracer {
	if store == nil {
		return nil
	}
	return newTracer(store, sessionID, metadata, logger)
}

func newTracer(store runWriter, sessionID, metadata string, logger *slog.Logger) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracer{
		store:     store,
		sessionID: sessionID,
		log:       logger.With("component", "trace", "session_id", sessionID),
		ch:        make(chan traceMsg, 64),
		done:      make(chan struct{}),
	}
	go t.drain()
	t.ch <- traceMsg{kind: "session_start", meta: metadata}
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		t.handle(msg)
	}
}

func (t *Tracer) handle(m traceMsg) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	handlers := map[string]func() error{
		"session_start": func() error { return t.store.CreateSession(ctx, t.sessionID, m.meta) },
		"session_end":   func() error { return t.store.EndSession(ctx, t.sessionID) },
		"run":           func() error { return t.store.InsertRun(ctx, m.run) },
	}
	fn, ok := handlers[m.kind]
	if !ok {
		return
	}
	if err := fn(); err != nil {
		t.log.Warn("trace write failed", "kind", m.kind, "error", err)
	}
}

// RecordRun queues a completed engine call. errMsg empty means success.
func (t *Tracer) RecordRun(mode, engine string, startedAt time.Time, audioSeconds, processingMs float64, language, transcript, errMsg string) {
	if t == nil {
		return
	}
	status := StatusOK
	if errMsg != "" {
		status = StatusError
	}
	t.ch <- traceMsg{kind: "run", run: Run{
		ID:           uuid.NewString(),
		SessionID:    t.sessionID,
		Mode:         mode,
		Engine:       engine,
		StartedAt:    startedAt,
		AudioSeconds: audioSeconds,
		ProcessingMs: processingMs,
		Language:     language,
		Transcript:   truncate(transcript, maxTextLen),
		Status:       status,
		Error:        truncate(errMsg, maxTextLen),
	}}
}

// Close stamps the session end, drains pending writes and stops the goroutine.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.ch <- traceMsg{kind: "session_end"}
	close(t.ch)
	<-t.done
}

// truncate cuts s to at most max bytes on a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
