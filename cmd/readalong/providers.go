package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/readalong/internal/config"
	"github.com/MrWong99/readalong/internal/resilience"
	"github.com/MrWong99/readalong/pkg/audio"
	"github.com/MrWong99/readalong/pkg/audio/wavmic"
	"github.com/MrWong99/readalong/pkg/playback"
	"github.com/MrWong99/readalong/pkg/provider/scoring"
	"github.com/MrWong99/readalong/pkg/provider/scoring/httpscore"
	"github.com/MrWong99/readalong/pkg/provider/stt"
	"github.com/MrWong99/readalong/pkg/provider/stt/deepgram"
	"github.com/MrWong99/readalong/pkg/provider/stt/whisper"
)

// Providers holds the collaborators built from the configuration. Scoring
// and Player are nil when not configured.
type Providers struct {
	STT        stt.Provider
	Scoring    scoring.Provider
	Microphone audio.Microphone
	Player     playback.Player

	STTBreakers     []*resilience.CircuitBreaker
	ScoringBreakers []*resilience.CircuitBreaker
}

// registerBuiltinProviders wires every provider implementation shipped with
// the module into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.ResolvedAPIKey(), opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		silence, err := entry.OptDuration("silence_threshold", 0)
		if err != nil {
			return nil, err
		}
		if silence > 0 {
			opts = append(opts, whisper.WithSilenceThreshold(silence))
		}
		maxBuf, err := entry.OptDuration("max_buffer", 0)
		if err != nil {
			return nil, err
		}
		if maxBuf > 0 {
			opts = append(opts, whisper.WithMaxBufferDuration(maxBuf))
		}
		timeout, err := entry.OptDuration("timeout", 60*time.Second)
		if err != nil {
			return nil, err
		}
		opts = append(opts, whisper.WithHTTPClient(&http.Client{Timeout: timeout}))
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── Scoring ───────────────────────────────────────────────────────────────

	reg.RegisterScoring("httpscore", func(entry config.ProviderEntry) (scoring.Provider, error) {
		opts := []httpscore.Option{
			httpscore.WithAPIKey(entry.ResolvedAPIKey()),
		}
		if entry.Model != "" {
			opts = append(opts, httpscore.WithModel(entry.Model))
		}
		if rps := entry.OptFloat("requests_per_second", 0); rps > 0 {
			burst := int(entry.OptFloat("burst", 1))
			opts = append(opts, httpscore.WithRateLimit(rate.Limit(rps), max(burst, 1)))
		}
		timeout, err := entry.OptDuration("timeout", 30*time.Second)
		if err != nil {
			return nil, err
		}
		opts = append(opts, httpscore.WithHTTPClient(&http.Client{Timeout: timeout}))
		return httpscore.New(entry.BaseURL, opts...)
	})

	// ── Microphone ────────────────────────────────────────────────────────────

	reg.RegisterMicrophone("wav", func(entry config.ProviderEntry) (audio.Microphone, error) {
		var opts []wavmic.Option
		frame, err := entry.OptDuration("frame_duration", 0)
		if err != nil {
			return nil, err
		}
		if frame > 0 {
			opts = append(opts, wavmic.WithFrameDuration(frame))
		}
		if v, ok := entry.Options["realtime"].(bool); ok {
			opts = append(opts, wavmic.WithRealtime(v))
		}
		return wavmic.New(entry.OptStrings("files"), opts...)
	})

	// ── Playback ──────────────────────────────────────────────────────────────

	reg.RegisterPlayback("clock", func(config.ProviderEntry) (playback.Player, error) {
		return playback.NewClockPlayer(slog.Default().With("component", "playback")), nil
	})
}

// buildProviders creates the configured providers. STT and scoring are always
// wrapped in a fallback group so their circuit breakers feed /readyz.
func buildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	p := cfg.Providers

	primarySTT, err := reg.CreateSTT(p.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", p.STT.Name, err)
	}
	sttGroup := resilience.NewSTTFallback(primarySTT, p.STT.Name, fallbackConfig(p.STT.Name))
	for _, e := range p.STTFallbacks {
		fb, err := reg.CreateSTT(e)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", e.Name, err)
		}
		sttGroup.AddFallback(e.Name, fb)
		slog.Info("provider created", "kind", "stt_fallback", "name", e.Name)
	}
	ps.STT = sttGroup
	ps.STTBreakers = sttGroup.Breakers()
	slog.Info("provider created", "kind", "stt", "name", p.STT.Name)

	if p.Scoring.Name != "" {
		primary, err := reg.CreateScoring(p.Scoring)
		if err != nil {
			return nil, fmt.Errorf("create scoring provider %q: %w", p.Scoring.Name, err)
		}
		group := resilience.NewScoringFallback(primary, p.Scoring.Name, fallbackConfig(p.Scoring.Name))
		for _, e := range p.ScoringFallbacks {
			fb, err := reg.CreateScoring(e)
			if err != nil {
				return nil, fmt.Errorf("create scoring fallback %q: %w", e.Name, err)
			}
			group.AddFallback(e.Name, fb)
			slog.Info("provider created", "kind", "scoring_fallback", "name", e.Name)
		}
		ps.Scoring = group
		ps.ScoringBreakers = group.Breakers()
		slog.Info("provider created", "kind", "scoring", "name", p.Scoring.Name)
	} else {
		slog.Info("no scoring provider configured; pronunciation scores are unavailable")
	}

	mic, err := reg.CreateMicrophone(p.Microphone)
	if err != nil {
		return nil, fmt.Errorf("create microphone %q: %w", p.Microphone.Name, err)
	}
	ps.Microphone = mic
	slog.Info("provider created", "kind", "microphone", "name", p.Microphone.Name)

	if p.Playback.Name != "" {
		player, err := reg.CreatePlayback(p.Playback)
		if err != nil {
			return nil, fmt.Errorf("create playback %q: %w", p.Playback.Name, err)
		}
		ps.Player = player
		slog.Info("provider created", "kind", "playback", "name", p.Playback.Name)
	}

	return ps, nil
}

func fallbackConfig(name string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Name:         name,
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
		},
	}
}
