package trace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

type memStore struct {
	mu      sync.Mutex
	calls   []string
	runs    []Run
	failRun bool
}

func (m *memStore) CreateSession(_ context.Context, id, metadata string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "start:"+id+":"+metadata)
	return nil
}

func (m *memStore) EndSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "end:"+id)
	return nil
}

func (m *memStore) InsertRun(_ context.Context, r Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRun {
		return errors.New("db down")
	}
	m.calls = append(m.calls, "run:"+r.Mode)
	m.runs = append(m.runs, r)
	return nil
}

func TestNilTracerIsNoop(t *testing.T) {
	var tr *Tracer
	tr.RecordRun("stream", "stub", time.Now(), 1, 10, "en", "hi", "")
	tr.Close()

	if NewTracer(nil, "s", "", nil) != nil {
		t.Fatal("NewTracer with nil store should return nil")
	}
}

func TestTracerWritesInOrder(t *testing.T) {
	store := &memStore{}
	tr := newTracer(store, "conn-1", `{"engine":"stub"}`, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.RecordRun("stream", "stub", time.Now(), 3, 120, "en", "hello", "")
	tr.RecordRun("final", "stub", time.Now(), 1, 0, "", "", "engine failed")
	tr.Close()

	want := []string{`start:conn-1:{"engine":"stub"}`, "run:stream", "run:final", "end:conn-1"}
	if strings.Join(store.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v, want %v", store.calls, want)
	}
	if store.runs[0].Status != StatusOK || store.runs[1].Status != StatusError {
		t.Errorf("statuses = %q, %q", store.runs[0].Status, store.runs[1].Status)
	}
	if store.runs[0].SessionID != "conn-1" || store.runs[0].ID == "" {
		t.Errorf("run = %+v", store.runs[0])
	}
}

func TestTracerSurvivesWriteFailure(t *testing.T) {
	store := &memStore{failRun: true}
	tr := newTracer(store, "conn-2", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.RecordRun("file", "stub", time.Now(), 1, 1, "", strings.Repeat("x", 2000), "")
	tr.Close()
	if len(store.calls) != 2 {
		t.Errorf("calls = %v", store.calls)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ab", 3); got != "ab" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("aé", 2); got != "a" {
		t.Errorf("truncate split a rune: %q", got)
	}
	long := strings.Repeat("日本語", 200)
	if got := truncate(long, maxTextLen); !utf8.ValidString(got) || len(got) > maxTextLen {
		t.Errorf("truncate = %d bytes, valid=%v", len(got), utf8.ValidString(got))
	}
}
