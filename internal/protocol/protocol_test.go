package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hubenschmidt/whisper-gateway/internal/transcribe"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
		check   func(*testing.T, *Inbound)
	}{
		{name: "stream", in: `{"type":"stream","audio":"AAA=","language":"en"}`, check: func(t *testing.T, m *Inbound) {
			if m.Lang() != "en" || m.Format != "" {
				t.Errorf("got %+v", m)
			}
		}},
		{name: "null language", in: `{"type":"file","audio":"AAA=","format":"mp3","language":null}`, check: func(t *testing.T, m *Inbound) {
			if m.Lang() != "" || m.Format != "mp3" {
				t.Errorf("got %+v", m)
			}
		}},
		{name: "stream rate", in: `{"type":"stream","audio":"AAA=","format":"g711_ulaw","sample_rate":8000}`, check: func(t *testing.T, m *Inbound) {
			if m.SampleRate != 8000 {
				t.Errorf("SampleRate = %d", m.SampleRate)
			}
		}},
		{name: "stop", in: `{"type":"stop"}`},
		{name: "malformed", in: `{"type":`, wantErr: true},
		{name: "unknown type", in: `{"type":"pause"}`, wantErr: true},
		{name: "missing type", in: `{"audio":"AAA="}`, wantErr: true},
		{name: "missing audio", in: `{"type":"stream"}`, wantErr: true},
		{name: "negative rate", in: `{"type":"stream","audio":"AAA=","sample_rate":-1}`, wantErr: true},
		{name: "rate too low", in: `{"type":"stream","audio":"AAA=","sample_rate":1}`, wantErr: true},
		{name: "rate too high", in: `{"type":"file","audio":"AAA=","sample_rate":384000}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse([]byte(tt.in))
			if tt.wantErr {
				var pe *ProtocolError
				if !errors.As(err, &pe) {
					t.Fatalf("err = %v, want *ProtocolError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if tt.check != nil {
				tt.check(t, msg)
			}
		})
	}
}

func TestTranscriptDurationOnPartialOnly(t *testing.T) {
	r := &transcribe.Result{Text: "hi", Language: "en", Duration: 3}

	partial, _ := json.Marshal(NewPartial(r))
	if !strings.Contains(string(partial), `"duration":3`) || !strings.Contains(string(partial), `"is_final":false`) {
		t.Errorf("partial = %s", partial)
	}
	final, _ := json.Marshal(NewFinal(r))
	if strings.Contains(string(final), "duration") || !strings.Contains(string(final), `"is_final":true`) {
		t.Errorf("final = %s", final)
	}
}

func TestFileTranscriptShape(t *testing.T) {
	out, err := json.Marshal(NewFileTranscript(&transcribe.Result{Language: "en"}))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err = json.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"type", "text", "segments", "language", "duration", "processing_time", "real_time_factor"} {
		if _, ok := m[k]; !ok {
			t.Errorf("missing field %q in %s", k, out)
		}
	}
	if segs, ok := m["segments"].([]any); !ok || len(segs) != 0 {
		t.Errorf("segments = %v, want []", m["segments"])
	}
}
