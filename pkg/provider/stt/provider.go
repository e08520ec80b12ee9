// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// A provider wraps a transcription service (Deepgram, a local whisper.cpp
// server, ...) behind a uniform streaming contract. Once a session is opened
// it accepts raw PCM audio and emits two ordered streams of [Transcript]
// values: low-latency partials that are safe to show while the user is still
// speaking, and authoritative finals that make up the recognised text.
//
// Recording sessions in a read-along exercise are short and have a hard end,
// so SessionHandle also exposes Finalize: it asks the backend to commit
// everything it has buffered so that the last final arrives before the caller
// stops listening.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by SessionHandle methods called after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the PCM sample rate in Hz. 16000 is what every built-in
	// provider expects for speech.
	SampleRate int

	// Channels is the number of interleaved channels. Most providers require 1.
	Channels int

	// Language is the BCP-47 language tag (e.g., "en-US"). Empty lets the
	// provider pick its default.
	Language string

	// Keywords are vocabulary hints. For practice sessions these are usually
	// the rare words of the sentence being read.
	Keywords []KeywordBoost
}

// SessionHandle is an open streaming session.
//
// Callers must call Close when done. Partials and Finals are closed by the
// implementation once the session has fully shut down.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit little-endian PCM matching the
	// StreamConfig. Returns ErrSessionClosed (possibly wrapped) after Close.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts in non-decreasing time order.
	Partials() <-chan Transcript

	// Finals emits committed transcripts in non-decreasing time order.
	Finals() <-chan Transcript

	// Finalize flushes buffered audio and blocks until the provider has
	// emitted the finals for it, ctx expires, or the session closes. Audio
	// sent after Finalize may be ignored.
	Finalize(ctx context.Context) error

	// Close aborts the session and releases its resources. Pending partials
	// may be discarded. Calling Close more than once is safe.
	Close() error
}

// Provider opens streaming sessions.
type Provider interface {
	// StartStream opens a session with the given configuration. It returns an
	// error when the backend is unreachable, rejects the configuration, or ctx
	// is already done. The caller owns the returned handle.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
