package resilience

import (
	"context"

	"github.com/MrWong99/readalong/pkg/provider/scoring"
)

// ScoringFallback implements [scoring.Provider] with failover across
// scoring services.
type ScoringFallback struct {
	group *FallbackGroup[scoring.Provider]
}

var _ scoring.Provider = (*ScoringFallback)(nil)

// NewScoringFallback creates a [ScoringFallback] with primary as the
// preferred scorer.
func NewScoringFallback(primary scoring.Provider, primaryName string, cfg FallbackConfig) *ScoringFallback {
	return &ScoringFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another scorer.
func (f *ScoringFallback) AddFallback(name string, p scoring.Provider) {
	f.group.AddFallback(name, p)
}

// Breakers returns the per-scorer breakers in try order.
func (f *ScoringFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// Score asks each scorer in turn until one answers.
func (f *ScoringFallback) Score(ctx context.Context, req scoring.Request) (*scoring.Score, error) {
	return ExecuteWithResult(ctx, f.group, func(p scoring.Provider) (*scoring.Score, error) {
		return p.Score(ctx, req)
	})
}
