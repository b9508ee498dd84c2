// Package engine defines the transcription capability the gateway depends on
// and the backends that provide it.
package engine

import (
	"context"
	"errors"
)

// ErrUnsupportedFormat is returned by backends that cannot read an artifact's container.
var ErrUnsupportedFormat = errors.New("engine: unsupported audio format")

// Engine transcribes an audio artifact on disk.
// Implementations must return segments in ascending start order.
type Engine interface {
	Transcribe(ctx context.Context, path string, opts Options) ([]Segment, Info, error)
}

// Options mirrors the decoding knobs the gateway exposes.
type Options struct {
	BeamSize       int
	VADFilter      bool
	Language       string // empty means auto-detect
	WordTimestamps bool
}

// Word is a single timed token, present only when WordTimestamps was requested.
type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Segment is one contiguous span of recognized speech, in seconds from the
// start of the artifact.
type Segment struct {
	Start float64
	End   float64
	Text  string
	Words []Word
}

// Info carries whole-artifact metadata.
type Info struct {
	Language string
	Duration float64 // seconds
}
