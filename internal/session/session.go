// Package session holds per-connection streaming audio buffers.
package session

import (
	"sync"
	"time"
)

// Defaults for streaming sessions at the normalized rate.
const (
	DefaultSampleRate = 16000
	DefaultThreshold  = 3 * time.Second
	DefaultCarryover  = time.Second
)

// NoCarryover disables window overlap; a zero Carryover means DefaultCarryover.
const NoCarryover time.Duration = -1

// Config sizes a session's flush window.
type Config struct {
	SampleRate int
	Threshold  time.Duration
	Carryover  time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	switch {
	case c.Carryover == 0:
		c.Carryover = DefaultCarryover
	case c.Carryover < 0:
		c.Carryover = 0
	}
	return c
}

// Session accumulates decoded samples for one connection. Every flush keeps
// the trailing carryover so consecutive windows overlap.
type Session struct {
	id         string
	createdAt  time.Time
	sampleRate int
	threshold  float64 // seconds
	carryover  int     // samples

	mu       sync.Mutex
	buffer   []float32
	language string
	flushes  int
}

// New creates an empty session.
func New(id string, cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		id:         id,
		createdAt:  time.Now(),
		sampleRate: cfg.SampleRate,
		threshold:  cfg.Threshold.Seconds(),
		carryover:  int(cfg.Carryover.Seconds() * float64(cfg.SampleRate)),
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) SampleRate() int      { return s.sampleRate }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Append adds samples and remembers the most recent non-empty language hint.
func (s *Session) Append(samples []float32, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, samples...)
	if language != "" {
		s.language = language
	}
}

// Duration is the buffered audio length in seconds.
func (s *Session) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration()
}

func (s *Session) duration() float64 {
	return float64(len(s.buffer)) / float64(s.sampleRate)
}

// Len is the buffered sample count.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Language is the last hint supplied with a chunk.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Flushes counts windows taken by Flush.
func (s *Session) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// ShouldFlush reports whether the buffer has reached the threshold.
func (s *Session) ShouldFlush() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration() >= s.threshold
}

// Flush returns a copy of the whole buffer and keeps only its last
// carryover samples (or all of them, if fewer).
func (s *Session) Flush() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := make([]float32, len(s.buffer))
	copy(window, s.buffer)

	keep := min(s.carryover, len(s.buffer))
	tail := make([]float32, keep)
	copy(tail, s.buffer[len(s.buffer)-keep:])
	s.buffer = tail
	s.flushes++
	return window
}

// Finalize returns whatever remains, or nil when empty, and clears the buffer.
func (s *Session) Finalize() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) == 0 {
		return nil
	}
	out := s.buffer
	s.buffer = nil
	return out
}
