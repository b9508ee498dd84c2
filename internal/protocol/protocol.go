// Package protocol defines the JSON messages exchanged over the gateway WebSocket.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/hubenschmidt/whisper-gateway/internal/audio"
	"github.com/hubenschmidt/whisper-gateway/internal/transcribe"
)

// Inbound message types.
const (
	TypeFile   = "file"
	TypeStream = "stream"
	TypeStop   = "stop"
)

// Outbound message types.
const (
	TypeTranscript     = "transcript"
	TypeFileTranscript = "file_transcript"
	TypeError          = "error"
)

// ProtocolError reports an unparseable or unrecognized client message.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid message: %s: %v", e.Reason, e.Err)
	}
	return "invalid message: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Inbound is any client message. Fields unused by a type are ignored.
type Inbound struct {
	Type       string  `json:"type"`
	Audio      string  `json:"audio,omitempty"`
	Format     string  `json:"format,omitempty"`
	Language   *string `json:"language,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
}

// Lang returns the language hint, empty when absent or null.
func (m *Inbound) Lang() string {
	if m.Language == nil {
		return ""
	}
	return *m.Language
}

// Parse decodes a text frame and checks its type.
func Parse(data []byte) (*Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &ProtocolError{Reason: "malformed JSON", Err: err}
	}
	switch msg.Type {
	case TypeFile, TypeStream:
		if msg.Audio == "" {
			return nil, &ProtocolError{Reason: fmt.Sprintf("%s message without audio", msg.Type)}
		}
		if msg.SampleRate != 0 && audio.CheckRate("", msg.SampleRate) != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("sample_rate %d outside %d..%d", msg.SampleRate, audio.MinSampleRate, audio.MaxSampleRate)}
		}
	case TypeStop:
	case "":
		return nil, &ProtocolError{Reason: "missing type"}
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown type %q", msg.Type)}
	}
	return &msg, nil
}

// Transcript is sent for each stream window and for the final flush.
// Duration is present on partials only.
type Transcript struct {
	Type     string   `json:"type"`
	Text     string   `json:"text"`
	IsFinal  bool     `json:"is_final"`
	Language string   `json:"language"`
	Duration *float64 `json:"duration,omitempty"`
}

// NewPartial builds a non-final transcript for a stream window.
func NewPartial(r *transcribe.Result) Transcript {
	d := r.Duration
	return Transcript{Type: TypeTranscript, Text: r.Text, Language: r.Language, Duration: &d}
}

// NewFinal builds the transcript sent in response to stop.
func NewFinal(r *transcribe.Result) Transcript {
	return Transcript{Type: TypeTranscript, Text: r.Text, IsFinal: true, Language: r.Language}
}

// FileTranscript answers a file message.
type FileTranscript struct {
	Type           string               `json:"type"`
	Text           string               `json:"text"`
	Segments       []transcribe.Segment `json:"segments"`
	Language       string               `json:"language"`
	Duration       float64              `json:"duration"`
	ProcessingTime float64              `json:"processing_time"`
	RealTimeFactor float64              `json:"real_time_factor"`
}

// NewFileTranscript builds the file reply from a result.
func NewFileTranscript(r *transcribe.Result) FileTranscript {
	segments := r.Segments
	if segments == nil {
		segments = []transcribe.Segment{}
	}
	return FileTranscript{
		Type:           TypeFileTranscript,
		Text:           r.Text,
		Segments:       segments,
		Language:       r.Language,
		Duration:       r.Duration,
		ProcessingTime: r.ProcessingTime,
		RealTimeFactor: r.RealTimeFactor,
	}
}

// Error reports a failed unit of work. The connection stays open.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError wraps err's message.
func NewError(err error) Error {
	return Error{Type: TypeError, Message: err.Error()}
}
