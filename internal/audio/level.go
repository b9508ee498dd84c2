package audio

import "math"

// EnergyDB returns the RMS level of samples in dBFS. Empty or digitally
// silent input reports -100.
func EnergyDB(samples []float32) float64 {
	if len(samples) == 0 {
		return -100
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 1e-10 {
		return -100
	}
	return 20 * math.Log10(rms)
}

// IsSilent reports whether the window's level is below thresholdDB.
// A threshold of 0 or above disables the check.
func IsSilent(samples []float32, thresholdDB float64) bool {
	if thresholdDB >= 0 {
		return false
	}
	return EnergyDB(samples) < thresholdDB
}
