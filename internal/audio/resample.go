package audio

import (
	"fmt"
	"math"
	"sync"
)

// Rates accepted from clients and containers. Upsampling is bounded by
// MaxSampleRate/MinSampleRate so a payload can grow at most 24x.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000
)

const filterTaps = 31

// CheckRate returns a DecodeError when rate is outside [MinSampleRate, MaxSampleRate].
func CheckRate(format Format, rate int) error {
	if rate < MinSampleRate || rate > MaxSampleRate {
		return &DecodeError{
			Format: format,
			Reason: fmt.Sprintf("sample rate %d outside %d..%d", rate, MinSampleRate, MaxSampleRate),
		}
	}
	return nil
}

// ResampledLen is the number of samples Resample returns for n input samples.
func ResampledLen(n, srcRate, dstRate int) int {
	if srcRate == dstRate || srcRate <= 0 {
		return n
	}
	return int(int64(n) * int64(dstRate) / int64(srcRate))
}

// Resample converts samples from srcRate to dstRate with linear interpolation
// and a windowed-sinc anti-aliasing filter. Both rates must pass CheckRate.
func Resample(samples []float32, srcRate, dstRate int) ([]float32, error) {
	if err := CheckRate("", srcRate); err != nil {
		return nil, err
	}
	if err := CheckRate("", dstRate); err != nil {
		return nil, err
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples, nil
	}

	// The filter runs at the higher rate with its cutoff at the lower Nyquist.
	kernel := kernelFor(min(srcRate, dstRate), max(srcRate, dstRate))
	if srcRate > dstRate {
		samples = convolve(samples, kernel)
	}

	out := make([]float32, ResampledLen(len(samples), srcRate, dstRate))
	src, dst := int64(srcRate), int64(dstRate)
	for i := range out {
		// Source position i*src/dst kept exact in integers so long streams don't drift.
		pos := int64(i) * src
		idx := int(pos / dst)
		frac := float32(pos%dst) / float32(dst)
		out[i] = interpolate(samples, idx, frac)
	}

	if dstRate > srcRate {
		out = convolve(out, kernel)
	}
	return out, nil
}

type kernelKey struct{ low, high int }

// kernels caches one filter per rate pair; streaming connections resample
// every chunk with the same pair.
var kernels sync.Map

func kernelFor(low, high int) []float32 {
	key := kernelKey{low, high}
	if k, ok := kernels.Load(key); ok {
		return k.([]float32)
	}
	k, _ := kernels.LoadOrStore(key, sincKernel(float64(low)/2, float64(high), filterTaps))
	return k.([]float32)
}

// convolve applies kernel centered on each sample; taps outside the input are skipped.
func convolve(samples, kernel []float32) []float32 {
	taps := len(kernel)
	half := taps / 2
	out := make([]float32, len(samples))
	for i := range samples {
		jStart := max(0, half-i)
		jEnd := min(taps, len(samples)-i+half)
		var sum float32
		for j := jStart; j < jEnd; j++ {
			sum += samples[i+j-half] * kernel[j]
		}
		out[i] = sum
	}
	return out
}

// sincKernel builds a Blackman-windowed sinc low-pass normalized to unity DC gain.
func sincKernel(cutoff, sampleRate float64, taps int) []float32 {
	fc := cutoff / sampleRate
	half := taps / 2
	span := float64(taps - 1)
	kernel := make([]float32, taps)

	var sum float64
	for i := range taps {
		n := float64(i - half)
		sinc := 1.0
		if n != 0 {
			x := 2 * math.Pi * fc * n
			sinc = math.Sin(x) / x
		}
		w := 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/span) + 0.08*math.Cos(4*math.Pi*float64(i)/span)
		kernel[i] = float32(sinc * w)
		sum += sinc * w
	}
	for i := range kernel {
		kernel[i] = float32(float64(kernel[i]) / sum)
	}
	return kernel
}

func interpolate(samples []float32, idx int, frac float32) float32 {
	if idx+1 >= len(samples) {
		return samples[len(samples)-1]
	}
	return samples[idx]*(1-frac) + samples[idx+1]*frac
}
