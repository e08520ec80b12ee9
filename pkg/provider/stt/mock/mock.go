// Package mock provides test doubles for the stt package interfaces.
//
// Session feeds controlled transcripts to the consumer and records the audio
// it receives. Provider hands out a Session (or an error) and records every
// StartStream call.
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.EmitPartial(stt.Transcript{Text: "the quick"})
//	sess.FinalizeResult = []stt.Transcript{{Text: "the quick brown fox", IsFinal: true}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. When nil a fresh Session is created
	// for each call.
	Session *Session

	// StartStreamErr, if non-nil, is returned by StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

// StartStream records the call and returns Session or StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session == nil {
		return NewSession(), nil
	}
	return p.Session, nil
}

// CallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	mu sync.Mutex

	partials chan stt.Transcript
	finals   chan stt.Transcript
	closed   bool

	// FinalizeResult is emitted on Finals when Finalize is called.
	FinalizeResult []stt.Transcript

	// FinalizeErr, if non-nil, is returned by Finalize.
	FinalizeErr error

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// Audio collects every chunk passed to SendAudio, in order.
	Audio [][]byte

	// FinalizeCalls and CloseCalls count invocations.
	FinalizeCalls int
	CloseCalls    int
}

// NewSession returns a Session with buffered output channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
	}
}

// SendAudio records a copy of chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.Audio = append(s.Audio, cp)
	return s.SendAudioErr
}

// Partials returns the partial transcript channel.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the final transcript channel.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// EmitPartial delivers t on the partials channel. It is a no-op after Close.
func (s *Session) EmitPartial(t stt.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.partials <- t
}

// EmitFinal delivers t on the finals channel. It is a no-op after Close.
func (s *Session) EmitFinal(t stt.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	t.IsFinal = true
	s.finals <- t
}

// Finalize emits FinalizeResult on Finals and returns FinalizeErr.
func (s *Session) Finalize(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinalizeCalls++
	if s.closed {
		return stt.ErrSessionClosed
	}
	for _, t := range s.FinalizeResult {
		t.IsFinal = true
		s.finals <- t
	}
	return s.FinalizeErr
}

// Close closes both output channels on the first call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	if !s.closed {
		s.closed = true
		close(s.partials)
		close(s.finals)
	}
	return s.CloseErr
}

// AudioChunks returns the number of chunks received. Thread-safe.
func (s *Session) AudioChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Audio)
}

// Closed reports whether Close has been called. Thread-safe.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ stt.SessionHandle = (*Session)(nil)
