package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAI transcribes through any OpenAI-compatible /v1/audio/transcriptions
// endpoint (OpenAI itself, faster-whisper servers, LocalAI).
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates a backend. An empty baseURL targets api.openai.com.
func NewOpenAI(apiKey, baseURL, model string, timeout time.Duration) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

// Transcribe uploads the artifact and decodes the verbose_json body.
// Beam size and VAD are server-side settings on this API and are not sent.
func (o *OpenAI) Transcribe(ctx context.Context, path string, opts Options) ([]Segment, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Info{}, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:           f,
		Model:          openai.AudioModel(o.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}
	if opts.Language != "" {
		params.Language = openai.String(opts.Language)
	}
	if opts.WordTimestamps {
		params.TimestampGranularities = []string{"word", "segment"}
	}

	var out verboseResponse
	if _, err = o.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&out)); err != nil {
		return nil, Info{}, fmt.Errorf("openai transcription: %w", err)
	}
	segments, info := out.toSegments()
	return segments, info, nil
}
