// Package mock provides in-memory implementations of [audio.Microphone] and
// [audio.Capture] for unit tests.
//
// The test owns the frame channel: push frames into Capture.FramesCh and the
// code under test will receive them. Closing the capture (from either side)
// closes the channel exactly once.
//
//	capt := mock.NewCapture(8)
//	mic := &mock.Microphone{Capture: capt}
//	capt.Push(audio.AudioFrame{Data: pcm, SampleRate: 16000, Channels: 1})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/readalong/pkg/audio"
)

// OpenCall records one invocation of Microphone.Open.
type OpenCall struct {
	Want audio.Format
}

// Microphone is a mock implementation of audio.Microphone.
type Microphone struct {
	mu sync.Mutex

	// Capture is returned by Open. When nil a fresh Capture with a small
	// buffer is created for each call.
	Capture *Capture

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// OpenCalls records every call to Open.
	OpenCalls []OpenCall
}

// Open records the call and returns Capture or OpenErr.
func (m *Microphone) Open(_ context.Context, want audio.Format) (audio.Capture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls = append(m.OpenCalls, OpenCall{Want: want})
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	if m.Capture == nil {
		return NewCapture(16), nil
	}
	return m.Capture, nil
}

// OpenCount returns the number of Open calls. Thread-safe.
func (m *Microphone) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.OpenCalls)
}

var _ audio.Microphone = (*Microphone)(nil)

// Capture is a mock implementation of audio.Capture.
type Capture struct {
	mu     sync.Mutex
	frames chan audio.AudioFrame
	closed bool

	// CloseCalls counts Close invocations.
	CloseCalls int
}

// NewCapture returns a Capture whose frame channel has the given buffer size.
func NewCapture(buffer int) *Capture {
	return &Capture{frames: make(chan audio.AudioFrame, buffer)}
}

// Frames returns the frame channel.
func (c *Capture) Frames() <-chan audio.AudioFrame { return c.frames }

// Push delivers f to the consumer. It reports false if the capture is
// already closed.
func (c *Capture) Push(f audio.AudioFrame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.frames <- f
	return true
}

// Close closes the frame channel on the first call.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls++
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
	return nil
}

// Closed reports whether Close has been called. Thread-safe.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var _ audio.Capture = (*Capture)(nil)
