package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/readalong/pkg/provider/scoring"
	scoringmock "github.com/MrWong99/readalong/pkg/provider/scoring/mock"
)

func TestScoringFallback_Score(t *testing.T) {
	t.Parallel()
	req := scoring.Request{Audio: []byte{1, 2}, OriginalText: "the cat sat"}

	primary := &scoringmock.Provider{Err: errors.New("HTTP 503")}
	backup := &scoringmock.Provider{Result: &scoring.Score{Overall: 0.8}}

	f := NewScoringFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	f.AddFallback("backup", backup)

	for range 3 {
		s, err := f.Score(context.Background(), req)
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if s.Overall != 0.8 {
			t.Errorf("Overall = %v, want 0.8", s.Overall)
		}
	}
	if got := primary.CallCount(); got != 2 {
		t.Errorf("primary calls = %d, want 2 before the breaker opened", got)
	}
	if got := backup.Calls[0].Req.OriginalText; got != "the cat sat" {
		t.Errorf("forwarded text = %q", got)
	}
	if st := f.Breakers()[0].State(); st != StateOpen {
		t.Errorf("primary breaker = %v, want open", st)
	}
}

func TestScoringFallback_AllFail(t *testing.T) {
	t.Parallel()
	cause := errors.New("timeout")
	f := NewScoringFallback(&scoringmock.Provider{Err: cause}, "only", FallbackConfig{})
	_, err := f.Score(context.Background(), scoring.Request{})
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, cause) {
		t.Errorf("err = %v, want ErrAllFailed wrapping cause", err)
	}
}
