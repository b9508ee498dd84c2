package audio

import (
	"encoding/base64"
	"strings"
)

// Format names either a raw sample encoding or a container.
type Format string

const (
	FormatPCM      Format = "pcm"
	FormatPCMS16LE Format = "pcm_s16le"
	FormatG711Ulaw Format = "g711_ulaw"
	FormatG711Alaw Format = "g711_alaw"
	FormatWAV      Format = "wav"
)

// TargetRate is the rate every streaming buffer is normalized to.
const TargetRate = 16000

// DecodeError reports a malformed or unsupported audio payload.
type DecodeError struct {
	Format Format
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "audio decode"
	if e.Format != "" {
		msg += " (" + string(e.Format) + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// decoder holds a codec's decode function and its fixed output sample rate.
// A rate of 0 means "use the caller-supplied sampleRate" (e.g. PCM passthrough).
type decoder struct {
	fn   func([]byte) ([]float32, int, error)
	rate int
}

// decoders maps each supported format to its decode function and output sample rate.
var decoders = map[Format]decoder{
	FormatPCM:      {fn: fixedRate(decodePCM), rate: 0},
	FormatPCMS16LE: {fn: fixedRate(decodePCM), rate: 0},
	FormatG711Ulaw: {fn: fixedRate(infallible(decodeG711Ulaw)), rate: 8000},
	FormatG711Alaw: {fn: fixedRate(infallible(decodeG711Alaw)), rate: 8000},
	FormatWAV:      {fn: decodeWAV, rate: 0},
}

func fixedRate(fn func([]byte) ([]float32, error)) func([]byte) ([]float32, int, error) {
	return func(data []byte) ([]float32, int, error) {
		samples, err := fn(data)
		return samples, 0, err
	}
}

func infallible(fn func([]byte) []float32) func([]byte) ([]float32, error) {
	return func(data []byte) ([]float32, error) { return fn(data), nil }
}

// ParseFormat lowercases and trims a client-supplied format name.
// An empty name defaults to raw PCM.
func ParseFormat(name string) Format {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if f == "" {
		return FormatPCM
	}
	return f
}

// IsRaw reports whether f is a headerless sample encoding this package can decode.
func IsRaw(f Format) bool {
	return f == FormatPCM || f == FormatPCMS16LE || f == FormatG711Ulaw || f == FormatG711Alaw
}

// Decode converts encoded audio bytes to float32 PCM samples normalized to [-1, 1].
// Returns samples and the sample rate. Containers report their own rate;
// rates outside MinSampleRate..MaxSampleRate are rejected.
func Decode(data []byte, format Format, sampleRate int) ([]float32, int, error) {
	dec, ok := decoders[format]
	if !ok {
		return nil, 0, &DecodeError{Format: format, Reason: "unsupported format"}
	}
	samples, rate, err := dec.fn(data)
	if err != nil {
		return nil, 0, err
	}
	if rate == 0 {
		rate = dec.rate
	}
	if rate == 0 {
		rate = sampleRate
	}
	if err = CheckRate(format, rate); err != nil {
		return nil, 0, err
	}
	return samples, rate, nil
}

// DecodePayload decodes base64 transport encoding. Both padded and unpadded
// standard alphabets are accepted.
func DecodePayload(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, &DecodeError{Reason: "empty audio payload"}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	data, rawErr := base64.RawStdEncoding.DecodeString(payload)
	if rawErr == nil {
		return data, nil
	}
	return nil, &DecodeError{Reason: "invalid base64", Err: err}
}

// Normalize decodes data and resamples it to TargetRate.
func Normalize(data []byte, format Format, sampleRate int) ([]float32, error) {
	samples, rate, err := Decode(data, format, sampleRate)
	if err != nil {
		return nil, err
	}
	return Resample(samples, rate, TargetRate)
}
