package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/hubenschmidt/whisper-gateway/internal/audio"
)

// Google transcribes with the Cloud Speech-to-Text synchronous Recognize API.
// Requires application default credentials.
type Google struct {
	client          *speech.Client
	defaultLanguage string
}

// NewGoogle dials the Speech API. endpoint may be empty.
func NewGoogle(ctx context.Context, defaultLanguage, endpoint string) (*Google, error) {
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google speech client: %w", err)
	}
	if defaultLanguage == "" {
		defaultLanguage = "en-US"
	}
	return &Google{client: c, defaultLanguage: defaultLanguage}, nil
}

// Close releases the gRPC connection.
func (g *Google) Close() error {
	return g.client.Close()
}

// Transcribe sends WAV artifacts as LINEAR16 and FLAC artifacts as-is.
func (g *Google) Transcribe(ctx context.Context, path string, opts Options) ([]Segment, Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Info{}, fmt.Errorf("read artifact: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = g.defaultLanguage
	}
	cfg := &speechpb.RecognitionConfig{
		LanguageCode:          lang,
		EnableWordTimeOffsets: opts.WordTimestamps,
		MaxAlternatives:       1,
	}

	var duration float64
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		samples, rate, decErr := audio.DecodeWAV(data)
		if decErr != nil {
			return nil, Info{}, decErr
		}
		cfg.Encoding = speechpb.RecognitionConfig_LINEAR16
		cfg.SampleRateHertz = int32(rate)
		data = audio.EncodePCM16(samples)
		duration = float64(len(samples)) / float64(rate)
	case ".flac":
		cfg.Encoding = speechpb.RecognitionConfig_FLAC
	default:
		return nil, Info{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: data}},
	})
	if err != nil {
		return nil, Info{}, fmt.Errorf("google recognize: %w", err)
	}

	info := Info{Language: lang, Duration: duration}
	var segments []Segment
	var prevEnd float64
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]
		end := r.GetResultEndTime().AsDuration().Seconds()
		seg := Segment{Start: prevEnd, End: max(end, prevEnd), Text: alt.GetTranscript()}
		for _, w := range alt.GetWords() {
			seg.Words = append(seg.Words, Word{
				Start: w.GetStartTime().AsDuration().Seconds(),
				End:   w.GetEndTime().AsDuration().Seconds(),
				Word:  w.GetWord(),
			})
		}
		if r.GetLanguageCode() != "" {
			info.Language = r.GetLanguageCode()
		}
		segments = append(segments, seg)
		prevEnd = seg.End
	}
	if info.Duration == 0 {
		info.Duration = prevEnd
	}
	return segments, info, nil
}
