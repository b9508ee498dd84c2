package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-audio/wav"
)

const wavHeaderLen = 44

// SamplesToWAV encodes float32 PCM samples as a mono 16-bit WAV byte slice.
func SamplesToWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	totalLen := wavHeaderLen + dataLen

	buf := make([]byte, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	copy(buf[wavHeaderLen:], EncodePCM16(samples))

	return buf
}

// DecodeWAV parses a PCM WAV container and returns mono samples and the
// container's sample rate. Multi-channel audio is averaged down to mono.
func DecodeWAV(data []byte) ([]float32, int, error) {
	return decodeWAV(data)
}

func decodeWAV(data []byte) ([]float32, int, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, 0, &DecodeError{Format: FormatWAV, Reason: "not a valid WAV container"}
	}
	if d.WavAudioFormat != 1 {
		return nil, 0, &DecodeError{Format: FormatWAV, Reason: fmt.Sprintf("unsupported WAV encoding %d (want PCM)", d.WavAudioFormat)}
	}
	depth := int(d.BitDepth)
	if depth != 16 && depth != 24 && depth != 32 {
		return nil, 0, &DecodeError{Format: FormatWAV, Reason: fmt.Sprintf("unsupported bit depth %d", depth)}
	}

	if err := CheckRate(FormatWAV, int(d.SampleRate)); err != nil {
		return nil, 0, err
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, &DecodeError{Format: FormatWAV, Reason: "read PCM data", Err: err}
	}

	channels := int(d.NumChans)
	if channels <= 0 {
		return nil, 0, &DecodeError{Format: FormatWAV, Reason: "zero channels"}
	}

	scale := float32(int64(1) << (depth - 1))
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float32(channels)
	}
	return samples, int(d.SampleRate), nil
}
