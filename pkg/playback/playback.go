// Package playback defines the Player capability used to play the reference
// reading of a sentence.
//
// A Player positions some media at an offset and starts playing; Pause halts
// it. How long to play is decided by the caller, which pauses the player when
// the sentence span has elapsed.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNoMedia is returned by Play when media is empty.
var ErrNoMedia = errors.New("playback: no media")

// Player plays chapter audio.
type Player interface {
	// Play seeks media to at and starts playback. It returns once playback
	// has started.
	Play(ctx context.Context, media string, at time.Duration) error

	// Pause stops playback. Pausing an idle player is a no-op.
	Pause() error
}

// ClockPlayer is a headless Player that logs seeks and tracks the playback
// position against the wall clock. It is used by the CLI when no audio output
// is available.
type ClockPlayer struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	media   string
	from    time.Duration
	started time.Time
	playing bool
}

var _ Player = (*ClockPlayer)(nil)

// NewClockPlayer returns a ClockPlayer that logs to log. A nil log uses
// slog.Default.
func NewClockPlayer(log *slog.Logger) *ClockPlayer {
	if log == nil {
		log = slog.Default()
	}
	return &ClockPlayer{log: log, now: time.Now}
}

// Play records the seek and starts the clock.
func (p *ClockPlayer) Play(ctx context.Context, media string, at time.Duration) error {
	if media == "" {
		return ErrNoMedia
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.media = media
	p.from = at
	p.started = p.now()
	p.playing = true
	p.log.InfoContext(ctx, "playback started", "media", media, "at", at)
	return nil
}

// Pause stops the clock.
func (p *ClockPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return nil
	}
	p.from += p.now().Sub(p.started)
	p.playing = false
	p.log.Info("playback paused", "media", p.media, "position", p.from)
	return nil
}

// Position returns the current playback offset and whether the player is
// running.
func (p *ClockPlayer) Position() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return p.from, false
	}
	return p.from + p.now().Sub(p.started), true
}
