// Package mock provides a test double for the scoring.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Result: &scoring.Score{Overall: 0.9}}
//	s, err := p.Score(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/readalong/pkg/provider/scoring"
)

// ScoreCall records a single invocation of Score.
type ScoreCall struct {
	Req scoring.Request
}

// Provider is a mock implementation of scoring.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Score when Err is nil. A nil Result yields a
	// zero Score.
	Result *scoring.Score

	// Err, if non-nil, is returned by Score.
	Err error

	// Block, if non-nil, makes Score wait until it is closed or ctx ends.
	Block chan struct{}

	// Calls records every call to Score.
	Calls []ScoreCall
}

// Score records the call and returns Result or Err.
func (p *Provider) Score(ctx context.Context, req scoring.Request) (*scoring.Score, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, ScoreCall{Req: req})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result == nil {
		return &scoring.Score{}, nil
	}
	s := *p.Result
	return &s, nil
}

// CallCount returns the number of Score calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ scoring.Provider = (*Provider)(nil)
