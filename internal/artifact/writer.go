// Package artifact materializes audio as short-lived files for engines that
// read from disk, and guarantees their removal.
package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hubenschmidt/whisper-gateway/internal/audio"
	"github.com/hubenschmidt/whisper-gateway/internal/metrics"
)

// Container selects the encoding used for sample windows.
type Container string

const (
	ContainerWAV  Container = "wav"
	ContainerFLAC Container = "flac"
)

const maxExtLen = 8

// Writer creates artifacts in dir. The zero value writes WAV files to os.TempDir().
type Writer struct {
	dir       string
	container Container
	log       *slog.Logger
	remove    func(string) error
}

// NewWriter returns a Writer for dir (empty means os.TempDir()).
func NewWriter(dir string, container Container, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if container != ContainerFLAC {
		container = ContainerWAV
	}
	return &Writer{
		dir:       dir,
		container: container,
		log:       logger.With("component", "artifact"),
		remove:    os.Remove,
	}
}

// Container reports the encoding used by WithSamples.
func (w *Writer) Container() Container {
	return w.container
}

// WithSamples encodes samples as a mono 16-bit file, calls fn with its path and
// removes the file before returning, whatever fn does.
func (w *Writer) WithSamples(samples []float32, sampleRate int, fn func(path string) error) error {
	var (
		data []byte
		err  error
	)
	switch w.container {
	case ContainerFLAC:
		data, err = audio.SamplesToFLAC(samples, sampleRate)
		if err != nil {
			return fmt.Errorf("encode artifact: %w", err)
		}
	default:
		data = audio.SamplesToWAV(samples, sampleRate)
	}
	return w.WithBytes(data, string(w.container), fn)
}

// WithBytes writes data verbatim to a file with the given extension, calls fn
// with its path and removes the file before returning.
func (w *Writer) WithBytes(data []byte, ext string, fn func(path string) error) error {
	f, err := os.CreateTemp(w.dir, "audio-*."+SanitizeExt(ext))
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	path := f.Name()
	defer w.cleanup(path)

	if _, err = f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	return fn(path)
}

func (w *Writer) cleanup(path string) {
	remove := w.remove
	if remove == nil {
		remove = os.Remove
	}
	err := remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return
	}
	metrics.ArtifactCleanupFailures.Inc()
	logger := w.log
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("artifact cleanup failed", "path", path, "error", err)
}

// SanitizeExt reduces a client-supplied format to a short alphanumeric file
// extension, defaulting to "wav".
func SanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == maxExtLen {
			break
		}
	}
	if b.Len() == 0 {
		return "wav"
	}
	return b.String()
}
