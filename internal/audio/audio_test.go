package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"testing"
)

func TestDecodePCMScaling(t *testing.T) {
	data := []byte{
		0x00, 0x80, // -32768
		0x00, 0x00, // 0
		0x00, 0x40, // 16384
		0xff, 0x7f, // 32767
	}
	samples, rate, err := Decode(data, FormatPCM, 16000)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rate != 16000 {
		t.Errorf("rate = %d, want 16000", rate)
	}
	want := []float32{-1, 0, 0.5, 32767.0 / 32768.0}
	for i, w := range want {
		if samples[i] != w {
			t.Errorf("sample %d = %v, want %v", i, samples[i], w)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		format Format
	}{
		{"odd pcm", []byte{0x01, 0x02, 0x03}, FormatPCM},
		{"unknown format", []byte{0x00, 0x00}, Format("opus")},
		{"garbage wav", []byte("definitely not a riff header"), FormatWAV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.data, tt.format, 16000)
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected *DecodeError, got %v", err)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		got, err := DecodePayload(enc.EncodeToString(raw))
		if err != nil {
			t.Fatalf("DecodePayload: %v", err)
		}
		if string(got) != string(raw) {
			t.Errorf("got %v, want %v", got, raw)
		}
	}

	for _, bad := range []string{"", "   ", "!!not base64!!"} {
		_, err := DecodePayload(bad)
		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			t.Errorf("DecodePayload(%q): expected *DecodeError, got %v", bad, err)
		}
	}
}

func TestWAVRoundTrip(t *testing.T) {
	const rate = 16000
	samples := make([]float32, rate/2)
	for i := range samples {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	samples[0] = 1
	samples[1] = -1

	decoded, gotRate, err := Decode(SamplesToWAV(samples, rate), FormatWAV, 0)
	if err != nil {
		t.Fatalf("Decode wav: %v", err)
	}
	if gotRate != rate {
		t.Fatalf("rate = %d, want %d", gotRate, rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("len = %d, want %d", len(decoded), len(samples))
	}

	// One quantization step of the 16-bit encoder plus the 32767/32768 scale mismatch.
	const tolerance = 2.0 / 32768
	for i := range samples {
		if diff := math.Abs(float64(decoded[i] - samples[i])); diff > tolerance {
			t.Fatalf("sample %d: got %v, want %v (diff %v)", i, decoded[i], samples[i], diff)
		}
	}
}

func TestDecodeWAVStereoDownmix(t *testing.T) {
	mono := SamplesToWAV([]float32{0.5, -0.5}, 8000)
	// Rewrite the header as 2 channels carrying one frame of (0.5, -0.5).
	mono[22] = 2
	mono[32] = 4
	samples, rate, err := DecodeWAV(mono)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 8000 {
		t.Errorf("rate = %d, want 8000", rate)
	}
	if len(samples) != 1 {
		t.Fatalf("frames = %d, want 1", len(samples))
	}
	if math.Abs(float64(samples[0])) > 1.0/32768 {
		t.Errorf("downmixed sample = %v, want ~0", samples[0])
	}
}

func TestDecodeWAVRejectsZeroRate(t *testing.T) {
	data := SamplesToWAV(tone16k(1600), TargetRate)
	binary.LittleEndian.PutUint32(data[24:28], 0)
	_, _, err := DecodeWAV(data)
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
}

func TestNormalizeRateBounds(t *testing.T) {
	tests := []struct {
		rate    int
		wantErr bool
	}{
		{1, true},
		{MinSampleRate - 1, true},
		{MinSampleRate, false},
		{44100, false},
		{MaxSampleRate, false},
		{MaxSampleRate + 1, true},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.rate), func(t *testing.T) {
			samples, err := Normalize(make([]byte, 2000), FormatPCM, tt.rate)
			if tt.wantErr {
				var decErr *DecodeError
				if !errors.As(err, &decErr) {
					t.Fatalf("expected *DecodeError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if want := ResampledLen(1000, tt.rate, TargetRate); len(samples) != want {
				t.Errorf("len = %d, want %d", len(samples), want)
			}
			if len(samples) > 1000*MaxSampleRate/MinSampleRate {
				t.Errorf("len = %d exceeds bounded growth", len(samples))
			}
		})
	}
}

func TestResampleKeepsDC(t *testing.T) {
	in := make([]float32, 4410)
	for i := range in {
		in[i] = 0.25
	}
	out, err := Resample(in, 44100, TargetRate)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != 1600 {
		t.Fatalf("len = %d, want 1600", len(out))
	}
	mid := out[len(out)/2]
	if math.Abs(float64(mid)-0.25) > 1e-3 {
		t.Errorf("mid sample = %v, want 0.25", mid)
	}
}

func tone16k(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/TargetRate))
	}
	return out
}

func TestNormalizeResamplesG711(t *testing.T) {
	data := make([]byte, 8000) // one second of u-law at 8 kHz
	for i := range data {
		data[i] = 0xff
	}
	samples, err := Normalize(data, FormatG711Ulaw, 0)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(samples) != TargetRate {
		t.Errorf("len = %d, want %d", len(samples), TargetRate)
	}
}

func TestParseFormat(t *testing.T) {
	if got := ParseFormat(""); got != FormatPCM {
		t.Errorf("empty = %q", got)
	}
	if got := ParseFormat(" WAV "); got != FormatWAV {
		t.Errorf("WAV = %q", got)
	}
	if !IsRaw(FormatG711Alaw) || IsRaw(FormatWAV) {
		t.Errorf("IsRaw misclassified formats")
	}
}

func TestIsSilent(t *testing.T) {
	quiet := make([]float32, 1600)
	loud := make([]float32, 1600)
	for i := range loud {
		loud[i] = 0.5
	}
	if !IsSilent(quiet, -50) {
		t.Error("zero samples should be silent")
	}
	if IsSilent(loud, -50) {
		t.Error("0.5 amplitude should not be silent at -50 dB")
	}
	if IsSilent(quiet, 0) {
		t.Error("threshold 0 disables the check")
	}
}

func TestSamplesToFLACMagic(t *testing.T) {
	samples := make([]float32, 10000)
	for i := range samples {
		samples[i] = float32(i%100) / 100
	}
	data, err := SamplesToFLAC(samples, TargetRate)
	if err != nil {
		t.Fatalf("SamplesToFLAC: %v", err)
	}
	if len(data) < 4 || string(data[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
}
