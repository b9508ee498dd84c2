package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hubenschmidt/whisper-gateway/internal/audio"
)

// Whisper sends artifacts as multipart uploads to a whisper.cpp-server
// compatible endpoint and parses its verbose_json response.
type Whisper struct {
	url      string
	endpoint string
	label    string
	client   *http.Client
}

// NewWhisper creates a client for whisper.cpp's /inference endpoint.
func NewWhisper(url string, poolSize int, timeout time.Duration) *Whisper {
	return &Whisper{
		url:      url,
		endpoint: "/inference",
		label:    "whisper",
		client:   NewPooledHTTPClient(poolSize, timeout),
	}
}

// Warmup sends a tiny silent clip to verify the server is responsive.
func (c *Whisper) Warmup(ctx context.Context) error {
	silence := audio.SamplesToWAV(make([]float32, audio.TargetRate), audio.TargetRate)
	body, contentType, err := buildMultipart("warmup.wav", bytes.NewReader(silence), Options{BeamSize: 1})
	if err != nil {
		return err
	}
	resp, err := c.post(ctx, body, contentType)
	if err != nil {
		return fmt.Errorf("%s warmup: %w", c.label, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s warmup status %d", c.label, resp.StatusCode)
	}
	return nil
}

// Transcribe uploads the artifact at path and returns the parsed segments.
func (c *Whisper) Transcribe(ctx context.Context, path string, opts Options) ([]Segment, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Info{}, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	body, contentType, err := buildMultipart(filepath.Base(path), f, opts)
	if err != nil {
		return nil, Info{}, err
	}

	resp, err := c.post(ctx, body, contentType)
	if err != nil {
		return nil, Info{}, fmt.Errorf("%s request: %w", c.label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, Info{}, fmt.Errorf("%s status %d: %s", c.label, resp.StatusCode, string(respBody))
	}

	var result verboseResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, Info{}, fmt.Errorf("decode %s response: %w", c.label, err)
	}
	segments, info := result.toSegments()
	return segments, info, nil
}

func (c *Whisper) post(ctx context.Context, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", c.label, err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.client.Do(req)
}

// verboseResponse is the OpenAI-style verbose_json shape shared by
// whisper.cpp server, faster-whisper servers and the OpenAI API.
type verboseResponse struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []Word  `json:"words"`
	} `json:"segments"`
	Words []Word `json:"words"`
}

func (r verboseResponse) toSegments() ([]Segment, Info) {
	info := Info{Language: r.Language, Duration: r.Duration}
	if len(r.Segments) == 0 && r.Text != "" {
		return []Segment{{Start: 0, End: r.Duration, Text: r.Text, Words: r.Words}}, info
	}
	segments := make([]Segment, 0, len(r.Segments))
	for _, s := range r.Segments {
		segments = append(segments, Segment{Start: s.Start, End: s.End, Text: s.Text, Words: s.Words})
	}
	return segments, info
}

func buildMultipart(filename string, src io.Reader, opts Options) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"temperature":     "0.0",
		"vad":             strconv.FormatBool(opts.VADFilter),
	}
	if opts.BeamSize > 0 {
		fields["beam_size"] = strconv.Itoa(opts.BeamSize)
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	if opts.WordTimestamps {
		fields["word_timestamps"] = "true"
	}
	for k, v := range fields {
		if err = writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}
