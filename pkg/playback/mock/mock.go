// Package mock provides a test double for playback.Player.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/readalong/pkg/playback"
)

// PlayCall records one invocation of Play.
type PlayCall struct {
	Media string
	At    time.Duration
}

// Player is a mock implementation of playback.Player.
type Player struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play.
	PlayErr error

	// PauseErr, if non-nil, is returned by Pause.
	PauseErr error

	PlayCalls  []PlayCall
	PauseCalls int

	playing bool
}

// Play records the call.
func (p *Player) Play(_ context.Context, media string, at time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = append(p.PlayCalls, PlayCall{Media: media, At: at})
	if p.PlayErr != nil {
		return p.PlayErr
	}
	p.playing = true
	return nil
}

// Pause records the call.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PauseCalls++
	p.playing = false
	return p.PauseErr
}

// Plays returns a copy of the recorded Play calls. Thread-safe.
func (p *Player) Plays() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlayCall(nil), p.PlayCalls...)
}

// Pauses returns the number of Pause calls. Thread-safe.
func (p *Player) Pauses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PauseCalls
}

// Playing reports whether Play succeeded more recently than Pause.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

var _ playback.Player = (*Player)(nil)
