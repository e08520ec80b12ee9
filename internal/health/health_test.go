package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/readalong/internal/resilience"
)

func ok(context.Context) error { return nil }

func readyz(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	New(Checker{Name: "never-run", Check: func(context.Context) error { return errors.New("down") }}).
		Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "stt", Check: ok}, {Name: "scoring", Check: ok}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"stt": "ok", "scoring": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "stt", Check: func(context.Context) error { return errors.New("dial refused") }},
				{Name: "scoring", Check: ok},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"stt": "fail: dial refused", "scoring": "ok"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, body := readyz(t, New(tc.checkers...), context.Background())
			if code != tc.wantCode || body.Status != tc.wantStatus {
				t.Errorf("got (%d, %q), want (%d, %q)", code, body.Status, tc.wantCode, tc.wantStatus)
			}
			for name, want := range tc.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	waiting := func(context.Context) error {
		<-release
		return nil
	}
	h := New(
		Checker{Name: "a", Check: waiting},
		Checker{Name: "b", Check: func(context.Context) error { close(release); return nil }},
	)

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
		done <- rec.Code
	}()
	select {
	case code := <-done:
		if code != http.StatusOK {
			t.Errorf("status = %d, want 200", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("checkers ran sequentially")
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if code, _ := readyz(t, h, ctx); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestConfigured(t *testing.T) {
	t.Parallel()
	if err := Configured("stt", true).Check(context.Background()); err != nil {
		t.Errorf("configured: %v", err)
	}
	if err := Configured("stt", false).Check(context.Background()); err == nil {
		t.Error("unconfigured provider passed")
	}
}

func TestBreakers(t *testing.T) {
	t.Parallel()
	trip := func(name string) *resilience.CircuitBreaker {
		cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: name, MaxFailures: 1, ResetTimeout: time.Hour,
		})
		_ = cb.Execute(func() error { return errors.New("HTTP 500") })
		return cb
	}
	healthy := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "backup"})

	if err := Breakers("scoring").Check(context.Background()); err != nil {
		t.Errorf("no breakers: %v", err)
	}
	if err := Breakers("scoring", trip("primary"), healthy).Check(context.Background()); err != nil {
		t.Errorf("one healthy breaker: %v", err)
	}
	err := Breakers("scoring", trip("primary"), trip("secondary")).Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "primary, secondary") {
		t.Errorf("all open: err = %v", err)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(Checker{Name: "stt", Check: ok}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
