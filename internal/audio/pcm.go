package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// pcmScale maps the signed 16-bit range onto [-1, 1).
const pcmScale = 32768

func decodePCM(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, &DecodeError{Format: FormatPCM, Reason: fmt.Sprintf("odd byte length %d for 16-bit samples", len(data))}
	}
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / pcmScale
	}
	return samples, nil
}

// EncodePCM16 quantizes samples to little-endian signed 16-bit PCM.
// Values outside [-1, 1] are clamped.
func EncodePCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(quantize(s)))
	}
	return buf
}

func quantize(s float32) int16 {
	clamped := max(-1.0, min(1.0, s))
	return int16(clamped * math.MaxInt16)
}
