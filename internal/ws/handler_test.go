package ws

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/whisper-gateway/internal/artifact"
	"github.com/hubenschmidt/whisper-gateway/internal/audio"
	"github.com/hubenschmidt/whisper-gateway/internal/engine"
	"github.com/hubenschmidt/whisper-gateway/internal/session"
	"github.com/hubenschmidt/whisper-gateway/internal/transcribe"
)

type failingEngine struct{}

func (failingEngine) Transcribe(context.Context, string, engine.Options) ([]engine.Segment, engine.Info, error) {
	return nil, engine.Info{}, errors.New("model crashed")
}

type testServer struct {
	url         string
	sessions    *session.Manager
	artifactDir string
}

func newTestServer(t *testing.T, eng engine.Engine, maxConns int) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	disp, err := transcribe.New(transcribe.Config{
		Engines:     engine.NewRouter(map[string]engine.Engine{"test": eng}, "test"),
		Artifacts:   artifact.NewWriter(dir, artifact.ContainerWAV, logger),
		Concurrency: 1,
		BeamSize:    5,
		VADFilter:   true,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("transcribe.New: %v", err)
	}
	sessions := session.NewManager(session.Config{SampleRate: audio.TargetRate})
	h := NewHandler(HandlerConfig{
		Dispatcher:     disp,
		Sessions:       sessions,
		MaxConnections: maxConns,
		Logger:         logger,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{
		url:         "ws" + strings.TrimPrefix(srv.URL, "http"),
		sessions:    sessions,
		artifactDir: dir,
	}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func tone(seconds float64) []float32 {
	n := int(seconds * audio.TargetRate)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/audio.TargetRate))
	}
	return out
}

func pcmChunk(seconds float64) string {
	return base64.StdEncoding.EncodeToString(audio.EncodePCM16(tone(seconds)))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func assertNoArtifacts(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read artifact dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("found %d leftover artifacts", len(entries))
	}
}

func TestFileTranscript(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(nil), 10)
	conn := srv.dial(t)

	wav := audio.SamplesToWAV(tone(5), audio.TargetRate)
	sendJSON(t, conn, map[string]any{"type": "file", "audio": base64.StdEncoding.EncodeToString(wav), "format": "wav", "language": nil})

	msg := readMsg(t, conn)
	if msg["type"] != "file_transcript" {
		t.Fatalf("type = %v, msg = %v", msg["type"], msg)
	}
	segments, _ := msg["segments"].([]any)
	if len(segments) != 5 {
		t.Fatalf("got %d segments, want 5", len(segments))
	}
	var texts []string
	for _, s := range segments {
		texts = append(texts, s.(map[string]any)["text"].(string))
	}
	if text := msg["text"].(string); text == "" || text != strings.Join(texts, " ") {
		t.Errorf("text = %q, segments joined = %q", text, strings.Join(texts, " "))
	}
	if msg["duration"].(float64) != 5 {
		t.Errorf("duration = %v", msg["duration"])
	}
	for _, k := range []string{"language", "processing_time", "real_time_factor"} {
		if _, ok := msg[k]; !ok {
			t.Errorf("missing %q", k)
		}
	}
	assertNoArtifacts(t, srv.artifactDir)
}

func TestStreamFlushesAtThreshold(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(nil), 10)
	conn := srv.dial(t)

	for range 3 {
		sendJSON(t, conn, map[string]any{"type": "stream", "audio": pcmChunk(1), "language": "en"})
	}
	msg := readMsg(t, conn)
	if msg["type"] != "transcript" || msg["is_final"] != false {
		t.Fatalf("msg = %v", msg)
	}
	if _, ok := msg["duration"]; !ok {
		t.Errorf("partial transcript without duration")
	}
	if msg["language"] != "en" {
		t.Errorf("language = %v", msg["language"])
	}

	stats := srv.sessions.Stats()
	if len(stats) != 1 || stats[0].BufferedSeconds > 1.0 {
		t.Fatalf("post-flush sessions = %+v", stats)
	}

	sendJSON(t, conn, map[string]any{"type": "stop"})
	final := readMsg(t, conn)
	if final["type"] != "transcript" || final["is_final"] != true {
		t.Fatalf("final = %v", final)
	}
	if _, ok := final["duration"]; ok {
		t.Errorf("final transcript carries duration")
	}
	waitFor(t, func() bool { return srv.sessions.Len() == 0 })
	assertNoArtifacts(t, srv.artifactDir)
}

func TestStopWithoutAudioSendsNothing(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(nil), 10)
	conn := srv.dial(t)

	sendJSON(t, conn, map[string]any{"type": "stop"})
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`))

	msg := readMsg(t, conn)
	if msg["type"] != "error" {
		t.Fatalf("stop produced a message: %v", msg)
	}
	if srv.sessions.Len() != 0 {
		t.Errorf("sessions = %d", srv.sessions.Len())
	}
}

func TestInvalidMessagesKeepConnection(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(nil), 10)
	conn := srv.dial(t)

	for _, raw := range []string{`{"type":`, `{"type":"rewind"}`, `{"type":"stream","audio":"***"}`} {
		conn.WriteMessage(websocket.TextMessage, []byte(raw))
		msg := readMsg(t, conn)
		if msg["type"] != "error" || msg["message"] == "" {
			t.Fatalf("%s: msg = %v", raw, msg)
		}
	}

	wav := audio.SamplesToWAV(tone(1), audio.TargetRate)
	sendJSON(t, conn, map[string]any{"type": "file", "audio": base64.StdEncoding.EncodeToString(wav)})
	if msg := readMsg(t, conn); msg["type"] != "file_transcript" {
		t.Fatalf("connection unusable after errors: %v", msg)
	}
}

func TestEngineFailureOnFile(t *testing.T) {
	srv := newTestServer(t, failingEngine{}, 10)
	conn := srv.dial(t)

	wav := audio.SamplesToWAV(tone(1), audio.TargetRate)
	sendJSON(t, conn, map[string]any{"type": "file", "audio": base64.StdEncoding.EncodeToString(wav), "format": "wav"})

	msg := readMsg(t, conn)
	if msg["type"] != "error" || !strings.Contains(msg["message"].(string), "model crashed") {
		t.Fatalf("msg = %v", msg)
	}
	assertNoArtifacts(t, srv.artifactDir)

	sendJSON(t, conn, map[string]any{"type": "stop"})
	conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
	if msg := readMsg(t, conn); msg["type"] != "error" {
		t.Fatalf("expected protocol error, got %v", msg)
	}
}

func TestEngineFailureOnStream(t *testing.T) {
	srv := newTestServer(t, failingEngine{}, 10)
	conn := srv.dial(t)

	for range 3 {
		sendJSON(t, conn, map[string]any{"type": "stream", "audio": pcmChunk(1)})
	}
	msg := readMsg(t, conn)
	if msg["type"] != "error" || !strings.Contains(msg["message"].(string), "model crashed") {
		t.Fatalf("msg = %v", msg)
	}
	stats := srv.sessions.Stats()
	if len(stats) != 1 || stats[0].BufferedSeconds > 1.0 {
		t.Fatalf("sessions after failed flush = %+v", stats)
	}

	// One more second stays below the threshold: buffered, no flush, no message.
	sendJSON(t, conn, map[string]any{"type": "stream", "audio": pcmChunk(1)})
	waitFor(t, func() bool {
		st := srv.sessions.Stats()
		return len(st) == 1 && st[0].BufferedSeconds > 1.5
	})

	sendJSON(t, conn, map[string]any{"type": "stop"})
	final := readMsg(t, conn)
	if final["type"] != "error" {
		t.Fatalf("stop after failed flush: msg = %v", final)
	}
	waitFor(t, func() bool { return srv.sessions.Len() == 0 })
	assertNoArtifacts(t, srv.artifactDir)
}

func TestEngineFailureOnStop(t *testing.T) {
	srv := newTestServer(t, failingEngine{}, 10)
	conn := srv.dial(t)

	sendJSON(t, conn, map[string]any{"type": "stream", "audio": pcmChunk(1)})
	sendJSON(t, conn, map[string]any{"type": "stop"})
	msg := readMsg(t, conn)
	if msg["type"] != "error" || !strings.Contains(msg["message"].(string), "model crashed") {
		t.Fatalf("msg = %v", msg)
	}
	waitFor(t, func() bool { return srv.sessions.Len() == 0 })
	assertNoArtifacts(t, srv.artifactDir)
}

func TestZeroRateWAVDoesNotStallServer(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(nil), 10)
	bad := audio.SamplesToWAV(tone(1), audio.TargetRate)
	binary.LittleEndian.PutUint32(bad[24:28], 0)

	first := srv.dial(t)
	sendJSON(t, first, map[string]any{"type": "file", "audio": base64.StdEncoding.EncodeToString(bad), "format": "wav"})
	if msg := readMsg(t, first); msg["type"] != "error" {
		t.Fatalf("zero-rate wav: msg = %v", msg)
	}

	second := srv.dial(t)
	good := audio.SamplesToWAV(tone(1), audio.TargetRate)
	sendJSON(t, second, map[string]any{"type": "file", "audio": base64.StdEncoding.EncodeToString(good), "format": "wav"})
	if msg := readMsg(t, second); msg["type"] != "file_transcript" {
		t.Fatalf("valid wav after bad one: msg = %v", msg)
	}
	assertNoArtifacts(t, srv.artifactDir)
}

func TestSampleRateBounds(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(nil), 10)

	for _, q := range []string{"?sample_rate=1", "?sample_rate=500000", "?sample_rate=fast"} {
		_, resp, err := websocket.DefaultDialer.Dial(srv.url+q, nil)
		if err == nil {
			t.Fatalf("%s: connection accepted", q)
		}
		if resp == nil || resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: resp = %v, err = %v", q, resp, err)
		}
	}

	conn := srv.dial(t)
	sendJSON(t, conn, map[string]any{"type": "stream", "audio": pcmChunk(0.1), "sample_rate": 1})
	msg := readMsg(t, conn)
	if msg["type"] != "error" {
		t.Fatalf("msg = %v", msg)
	}
	if srv.sessions.Len() != 0 {
		t.Errorf("rejected chunk created a session")
	}
}

func TestUnsupportedFileFormat(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(nil), 10)
	conn := srv.dial(t)

	sendJSON(t, conn, map[string]any{"type": "file", "audio": base64.StdEncoding.EncodeToString([]byte("xyz")), "format": "midi"})
	if msg := readMsg(t, conn); msg["type"] != "error" {
		t.Fatalf("msg = %v", msg)
	}
	sendJSON(t, conn, map[string]any{"type": "file", "audio": base64.StdEncoding.EncodeToString([]byte("RIFFjunk")), "format": "wav"})
	if msg := readMsg(t, conn); msg["type"] != "error" {
		t.Fatalf("malformed wav: msg = %v", msg)
	}
	assertNoArtifacts(t, srv.artifactDir)
}

func TestBinaryFramesStream(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(nil), 10)
	conn := srv.dial(t)

	if err := conn.WriteMessage(websocket.BinaryMessage, audio.EncodePCM16(tone(3))); err != nil {
		t.Fatal(err)
	}
	msg := readMsg(t, conn)
	if msg["type"] != "transcript" || msg["is_final"] != false {
		t.Fatalf("msg = %v", msg)
	}
}

func TestDisconnectDiscardsSession(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(nil), 10)
	conn := srv.dial(t)

	sendJSON(t, conn, map[string]any{"type": "stream", "audio": pcmChunk(1)})
	waitFor(t, func() bool { return srv.sessions.Len() == 1 })
	conn.Close()
	waitFor(t, func() bool { return srv.sessions.Len() == 0 })
	assertNoArtifacts(t, srv.artifactDir)
}

func TestAdmissionLimit(t *testing.T) {
	srv := newTestServer(t, engine.NewStub(nil), 1)
	first := srv.dial(t)
	_ = first

	_, resp, err := websocket.DefaultDialer.Dial(srv.url, nil)
	if err == nil {
		t.Fatal("second connection accepted over capacity")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("resp = %v, err = %v", resp, err)
	}
}
