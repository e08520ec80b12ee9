// Package audio defines the audio types shared by the capture pipeline: PCM
// frames, the microphone capability, format conversion, level metering, and
// the WAV artifacts a recording leaves behind.
//
// All PCM in this package is 16-bit signed little-endian, interleaved when
// there is more than one channel.
//
// This package lives under pkg/ because microphone backends are expected to
// be implemented outside this module (a mobile host, a desktop audio API, a
// WebRTC track, ...).
package audio

import (
	"context"
	"fmt"
	"time"
)

// AudioFrame is a single chunk of captured PCM.
type AudioFrame struct {
	// Data is the raw PCM payload.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// Timestamp is the capture time relative to the start of the stream.
	Timestamp time.Duration
}

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the PCM data rate of f. Zero for an invalid format.
func (f Format) BytesPerSecond() int {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return f.SampleRate * f.Channels * 2
}

// Duration returns how much audio n bytes of PCM in format f represent.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// String returns e.g. "16000Hz mono".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// Capture is an open microphone stream.
type Capture interface {
	// Frames delivers captured audio in capture order. The channel is closed
	// when the stream ends, either because Close was called or because the
	// device stopped.
	Frames() <-chan AudioFrame

	// Close stops capturing. It is safe to call more than once.
	Close() error
}

// Microphone is the capture capability. Implementations must be safe for
// concurrent use, but callers should only hold one Capture at a time since
// most hosts grant exclusive access to the input device.
type Microphone interface {
	// Open starts capturing. want is a hint; frames carry their actual format
	// and callers convert as needed.
	Open(ctx context.Context, want Format) (Capture, error)
}

// Drain reads from ch until it is closed, discarding all values.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
