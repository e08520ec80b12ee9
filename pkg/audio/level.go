package audio

import (
	"encoding/binary"
	"math"
)

// DefaultMinDecibels is the floor of the metering window. Anything quieter
// reads as level 0.
const DefaultMinDecibels = -60.0

// fullScale is the magnitude of the largest negative 16-bit sample.
const fullScale = 32768.0

// RMS returns the root-mean-square amplitude of 16-bit PCM in sample units
// (0–32768). Returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Decibels converts an RMS amplitude to dBFS. Silence maps to -Inf.
func Decibels(rms float64) float64 {
	if rms <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/fullScale)
}

// NormalizeLevel maps a dBFS value onto [0, 1] using the window
// [minDecibels, 0]. A non-negative minDecibels falls back to
// DefaultMinDecibels.
func NormalizeLevel(db, minDecibels float64) float64 {
	if minDecibels >= 0 {
		minDecibels = DefaultMinDecibels
	}
	if math.IsNaN(db) || db <= minDecibels {
		return 0
	}
	if db >= 0 {
		return 1
	}
	return (db - minDecibels) / -minDecibels
}

// Level is shorthand for NormalizeLevel(Decibels(RMS(pcm)), minDecibels).
func Level(pcm []byte, minDecibels float64) float64 {
	return NormalizeLevel(Decibels(RMS(pcm)), minDecibels)
}
