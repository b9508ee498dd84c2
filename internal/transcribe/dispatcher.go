// Package transcribe submits audio windows and uploaded files to an engine
// through a bounded-concurrency gate and packages the results.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hubenschmidt/whisper-gateway/internal/artifact"
	"github.com/hubenschmidt/whisper-gateway/internal/audio"
	"github.com/hubenschmidt/whisper-gateway/internal/engine"
	"github.com/hubenschmidt/whisper-gateway/internal/metrics"
)

// Mode labels metrics and traces.
type Mode string

const (
	ModeStream Mode = "stream"
	ModeFinal  Mode = "final"
	ModeFile   Mode = "file"
)

// Segment is one timed span of the transcript, relative to the submitted audio.
type Segment struct {
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Text  string        `json:"text"`
	Words []engine.Word `json:"words,omitempty"`
}

// Result is the outcome of one engine call.
type Result struct {
	Engine         string
	Segments       []Segment
	Text           string
	Language       string
	Duration       float64 // seconds of source audio
	ProcessingTime float64 // seconds spent in the engine call
	RealTimeFactor float64
}

// Request carries the per-call parameters.
type Request struct {
	Engine         string // empty selects the default
	Language       string
	WordTimestamps bool
	Mode           Mode
}

// Config configures a Dispatcher.
type Config struct {
	Engines            *engine.Router[engine.Engine]
	Artifacts          *artifact.Writer
	Concurrency        int
	BeamSize           int
	VADFilter          bool
	SilenceThresholdDB float64       // >= 0 disables the silence gate
	Timeout            time.Duration // 0 means no per-call timeout
	Logger             *slog.Logger
}

// Dispatcher is stateless between calls and safe for concurrent use.
type Dispatcher struct {
	engines   *engine.Router[engine.Engine]
	artifacts *artifact.Writer
	gate      *gate
	beamSize  int
	vad       bool
	silenceDB float64
	timeout   time.Duration
	log       *slog.Logger
}

// New builds a Dispatcher. Engines is required.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Engines == nil {
		return nil, errors.New("transcribe: engine router is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	artifacts := cfg.Artifacts
	if artifacts == nil {
		artifacts = artifact.NewWriter("", artifact.ContainerWAV, logger)
	}
	beam := cfg.BeamSize
	if beam <= 0 {
		beam = 5
	}
	return &Dispatcher{
		engines:   cfg.Engines,
		artifacts: artifacts,
		gate:      newGate(cfg.Concurrency),
		beamSize:  beam,
		vad:       cfg.VADFilter,
		silenceDB: cfg.SilenceThresholdDB,
		timeout:   cfg.Timeout,
		log:       logger.With("component", "transcribe"),
	}, nil
}

// Concurrency reports the gate size.
func (d *Dispatcher) Concurrency() int { return d.gate.capacity() }

// TranscribeSamples waits for an engine slot, writes samples to a temporary
// artifact and transcribes it.
func (d *Dispatcher) TranscribeSamples(ctx context.Context, samples []float32, sampleRate int, req Request) (*Result, error) {
	duration := float64(len(samples)) / float64(sampleRate)
	if audio.IsSilent(samples, d.silenceDB) {
		d.log.Debug("skipping silent window", "duration", duration, "mode", req.Mode)
		return &Result{Engine: req.Engine, Language: req.Language, Duration: duration, Segments: []Segment{}}, nil
	}

	res, err := d.call(ctx, req, func(transcribe func(path string) error) error {
		return d.artifacts.WithSamples(samples, sampleRate, transcribe)
	})
	if err != nil {
		return nil, err
	}
	if res.Duration == 0 {
		res.Duration = duration
		res.RealTimeFactor = RealTimeFactor(duration, res.ProcessingTime)
	}
	metrics.AudioSeconds.WithLabelValues(string(req.Mode)).Add(duration)
	return res, nil
}

// TranscribeFile waits for an engine slot, writes an uploaded file verbatim
// and transcribes it.
func (d *Dispatcher) TranscribeFile(ctx context.Context, data []byte, ext string, req Request) (*Result, error) {
	res, err := d.call(ctx, req, func(transcribe func(path string) error) error {
		return d.artifacts.WithBytes(data, ext, transcribe)
	})
	if err != nil {
		return nil, err
	}
	metrics.AudioSeconds.WithLabelValues(string(req.Mode)).Add(res.Duration)
	return res, nil
}

// call routes the request and holds a gate slot while the artifact exists,
// so queued callers keep nothing on disk. The slot is returned even if the
// engine panics.
func (d *Dispatcher) call(ctx context.Context, req Request, withArtifact func(func(path string) error) error) (*Result, error) {
	eng, name, err := d.engines.Route(req.Engine)
	if err != nil {
		return nil, asEngineError(err, req.Engine)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err = d.gate.acquire(ctx); err != nil {
		return nil, &EngineError{Engine: name, Err: fmt.Errorf("waiting for engine slot: %w", err)}
	}
	defer d.gate.release()

	var res *Result
	err = withArtifact(func(path string) error {
		var callErr error
		res, callErr = d.run(ctx, eng, name, path, req)
		return callErr
	})
	if err != nil {
		return nil, asEngineError(err, name)
	}
	return res, nil
}

func (d *Dispatcher) run(ctx context.Context, eng engine.Engine, name, path string, req Request) (*Result, error) {
	start := time.Now()
	raw, info, err := eng.Transcribe(ctx, path, engine.Options{
		BeamSize:       d.beamSize,
		VADFilter:      d.vad,
		Language:       req.Language,
		WordTimestamps: req.WordTimestamps,
	})
	elapsed := time.Since(start).Seconds()

	metrics.TranscriptionDuration.WithLabelValues(string(req.Mode), name).Observe(elapsed)
	if err != nil {
		return nil, &EngineError{Engine: name, Err: err}
	}

	segments := d.normalize(raw)
	lang := info.Language
	if lang == "" {
		lang = req.Language
	}
	rtf := RealTimeFactor(info.Duration, elapsed)
	if info.Duration > 0 {
		metrics.RealTimeFactor.WithLabelValues(string(req.Mode)).Observe(rtf)
	}
	d.log.Debug("transcribed",
		"engine", name,
		"mode", req.Mode,
		"segments", len(segments),
		"duration", info.Duration,
		"processing_time", elapsed,
	)
	return &Result{
		Engine:         name,
		Segments:       segments,
		Text:           JoinText(segments),
		Language:       lang,
		Duration:       info.Duration,
		ProcessingTime: elapsed,
		RealTimeFactor: rtf,
	}, nil
}

// normalize trims text, drops empty segments and clamps inverted spans,
// keeping engine order.
func (d *Dispatcher) normalize(raw []engine.Segment) []Segment {
	out := make([]Segment, 0, len(raw))
	for _, s := range raw {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		end := s.End
		if end < s.Start {
			d.log.Warn("engine returned inverted segment", "start", s.Start, "end", s.End)
			end = s.Start
		}
		out = append(out, Segment{Start: s.Start, End: end, Text: text, Words: s.Words})
	}
	return out
}

// JoinText concatenates non-empty segment texts with single spaces.
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}

// RealTimeFactor is duration / processing time, or 0 when processing time is 0.
func RealTimeFactor(duration, processing float64) float64 {
	if processing <= 0 {
		return 0
	}
	return duration / processing
}

func asEngineError(err error, name string) error {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return &EngineError{Engine: name, Err: err}
}
