package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/hubenschmidt/whisper-gateway/internal/audio"
)

// Stub produces deterministic transcripts without contacting a model server.
type Stub struct {
	log *slog.Logger
}

// NewStub returns an Engine that generates placeholder transcripts.
func NewStub(logger *slog.Logger) *Stub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stub{log: logger.With("component", "engine.stub")}
}

// Transcribe emits one segment per started second of WAV audio. Other
// containers yield a single segment describing the payload size.
func (s *Stub) Transcribe(ctx context.Context, path string, opts Options) ([]Segment, Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, Info{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Info{}, fmt.Errorf("read artifact: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = "en"
	}

	if strings.ToLower(filepath.Ext(path)) != ".wav" {
		s.log.Debug("stub transcript", "bytes", len(data), "path", filepath.Base(path))
		return []Segment{{Text: fmt.Sprintf("[stub] received %d bytes", len(data))}}, Info{Language: lang}, nil
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, Info{}, err
	}
	if rate <= 0 {
		return nil, Info{}, fmt.Errorf("stub: invalid sample rate %d", rate)
	}
	duration := float64(len(samples)) / float64(rate)
	n := int(math.Ceil(duration))
	segments := make([]Segment, 0, n)
	for i := range n {
		seg := Segment{
			Start: float64(i),
			End:   math.Min(float64(i+1), duration),
			Text:  fmt.Sprintf("[stub] second %d", i+1),
		}
		if opts.WordTimestamps {
			seg.Words = []Word{{Start: seg.Start, End: seg.End, Word: "stub"}}
		}
		segments = append(segments, seg)
	}
	s.log.Debug("stub transcript", "duration", duration, "segments", n)
	return segments, Info{Language: lang, Duration: duration}, nil
}
