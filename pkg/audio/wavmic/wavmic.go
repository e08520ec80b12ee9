// Package wavmic implements [audio.Microphone] by replaying WAV files.
//
// It stands in for a hardware input device on headless hosts and in
// end-to-end tests: each Open plays the next file of its playlist (wrapping
// around) in fixed-size frames. In real-time mode frames are paced by the
// wall clock and the capture keeps producing silence after the file ends,
// the way a live microphone does, until it is closed.
package wavmic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/readalong/pkg/audio"
)

const defaultFrameDuration = 20 * time.Millisecond

// Option configures a Microphone.
type Option func(*Microphone)

// WithFrameDuration sets the length of each emitted frame. Default: 20 ms.
func WithFrameDuration(d time.Duration) Option {
	return func(m *Microphone) {
		if d > 0 {
			m.frame = d
		}
	}
}

// WithRealtime toggles wall-clock pacing. When false, frames are emitted as
// fast as the consumer reads them and the stream closes at the end of the
// file. Default: true.
func WithRealtime(on bool) Option {
	return func(m *Microphone) {
		m.realtime = on
	}
}

// Microphone replays a playlist of WAV files.
type Microphone struct {
	frame    time.Duration
	realtime bool

	mu    sync.Mutex
	files []string
	next  int
}

// New returns a Microphone for the given WAV files. At least one path is
// required; files are validated lazily on Open.
func New(paths []string, opts ...Option) (*Microphone, error) {
	if len(paths) == 0 {
		return nil, errors.New("wavmic: at least one wav file is required")
	}
	m := &Microphone{
		frame:    defaultFrameDuration,
		realtime: true,
		files:    append([]string(nil), paths...),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Open starts replaying the next file. The want format is ignored; frames
// carry the file's own format.
func (m *Microphone) Open(ctx context.Context, _ audio.Format) (audio.Capture, error) {
	m.mu.Lock()
	path := m.files[m.next%len(m.files)]
	m.next++
	m.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavmic: open %q: %w", path, err)
	}
	format, pcm, err := audio.DecodeWAV(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("wavmic: decode %q: %w", path, err)
	}

	c := &capture{
		frames: make(chan audio.AudioFrame, 8),
		done:   make(chan struct{}),
	}
	go c.run(ctx, format, pcm, m.frame, m.realtime)
	return c, nil
}

var _ audio.Microphone = (*Microphone)(nil)

type capture struct {
	frames chan audio.AudioFrame
	done   chan struct{}
	once   sync.Once
}

func (c *capture) Frames() <-chan audio.AudioFrame { return c.frames }

func (c *capture) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *capture) run(ctx context.Context, f audio.Format, pcm []byte, frame time.Duration, realtime bool) {
	defer close(c.frames)

	blockAlign := f.Channels * 2
	size := int(int64(f.BytesPerSecond()) * int64(frame) / int64(time.Second))
	size -= size % max(blockAlign, 1)
	if size <= 0 {
		return
	}

	var tick <-chan time.Time
	if realtime {
		t := time.NewTicker(frame)
		defer t.Stop()
		tick = t.C
	}

	silence := make([]byte, size)
	var ts time.Duration
	for off := 0; ; off += size {
		var chunk []byte
		switch {
		case off < len(pcm):
			chunk = pcm[off:min(off+size, len(pcm))]
		case realtime:
			chunk = silence
		default:
			return
		}

		if tick != nil {
			select {
			case <-tick:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
		select {
		case c.frames <- audio.AudioFrame{Data: chunk, SampleRate: f.SampleRate, Channels: f.Channels, Timestamp: ts}:
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
		ts += f.Duration(len(chunk))
	}
}
