package resilience

import (
	"context"

	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] by opening the stream on the first
// healthy recognizer. Failover happens only at StartStream; an established
// session stays bound to the recognizer that opened it.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// recognizer.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another recognizer.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Breakers returns the per-recognizer breakers in try order.
func (f *STTFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// StartStream opens a session against the first recognizer that accepts it.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
