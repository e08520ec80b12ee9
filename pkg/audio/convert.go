package audio

import (
	"encoding/binary"
	"log/slog"
	"sync"
)

// Converter brings captured frames to the format a recognizer expects. It
// down-mixes to mono (or duplicates mono to stereo) and resamples with linear
// interpolation. Create one per stream; it is not meant to be shared across
// goroutines.
type Converter struct {
	Target Format

	warnMismatch sync.Once
	warnCorrupt  sync.Once
}

// Convert returns frame in the target format. Frames already in the target
// format are returned unchanged. Frames whose payload is not a whole number of
// samples are dropped (empty Data).
func (c *Converter) Convert(frame AudioFrame) AudioFrame {
	channels := max(frame.Channels, 1)
	if len(frame.Data)%(2*channels) != 0 {
		c.warnCorrupt.Do(func() {
			slog.Warn("audio: dropping frame with partial samples",
				"bytes", len(frame.Data),
				"channels", channels,
			)
		})
		return AudioFrame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}
	if frame.SampleRate == c.Target.SampleRate && channels == c.Target.Channels {
		return frame
	}

	c.warnMismatch.Do(func() {
		slog.Debug("audio: converting capture format",
			"from", Format{SampleRate: frame.SampleRate, Channels: channels}.String(),
			"to", c.Target.String(),
		)
	})

	samples := decode(frame.Data)
	if channels > 1 && c.Target.Channels == 1 {
		samples = downmix(samples, channels)
		channels = 1
	}
	if channels == 1 && frame.SampleRate != c.Target.SampleRate {
		samples = resample(samples, frame.SampleRate, c.Target.SampleRate)
	}
	if channels == 1 && c.Target.Channels == 2 {
		samples = upmix(samples)
		channels = 2
	}

	return AudioFrame{
		Data:       encode(samples),
		SampleRate: c.Target.SampleRate,
		Channels:   channels,
		Timestamp:  frame.Timestamp,
	}
}

func decode(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func encode(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// downmix averages interleaved channels into a single channel.
func downmix(samples []int16, channels int) []int16 {
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(samples[i*channels+ch])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

func upmix(samples []int16) []int16 {
	out := make([]int16, len(samples)*2)
	for i, s := range samples {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// resample converts mono samples from srcRate to dstRate by linear
// interpolation.
func resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	out := make([]int16, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := float64(samples[idx])
		s1 := s0
		if idx+1 < len(samples) {
			s1 = float64(samples[idx+1])
		}
		out[i] = int16(s0*(1-frac) + s1*frac)
	}
	return out
}
