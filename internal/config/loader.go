package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in provider names per kind. [Validate]
// warns about names outside these lists.
var ValidProviderNames = map[string][]string{
	"stt":        {"deepgram", "whisper"},
	"scoring":    {"httpscore"},
	"microphone": {"wav"},
	"playback":   {"clock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg is coherent and returns every problem found,
// joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	p := cfg.Providers
	if p.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if p.Microphone.Name == "" {
		errs = append(errs, errors.New("providers.microphone.name is required"))
	}
	if p.Scoring.Name == "" && len(p.ScoringFallbacks) > 0 {
		errs = append(errs, errors.New("providers.scoring_fallbacks requires providers.scoring"))
	}
	for i, e := range p.STTFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
		warnUnknownProvider("stt", e.Name)
	}
	for i, e := range p.ScoringFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.scoring_fallbacks[%d].name is required", i))
		}
		warnUnknownProvider("scoring", e.Name)
	}
	warnUnknownProvider("stt", p.STT.Name)
	warnUnknownProvider("scoring", p.Scoring.Name)
	warnUnknownProvider("microphone", p.Microphone.Name)
	warnUnknownProvider("playback", p.Playback.Name)

	c := cfg.Capture
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is out of range [8000, 48000]", c.SampleRate))
	}
	if c.Channels != 1 && c.Channels != 2 {
		errs = append(errs, fmt.Errorf("capture.channels %d is invalid; valid values: 1, 2", c.Channels))
	}
	if c.LevelInterval < 0 {
		errs = append(errs, fmt.Errorf("capture.level_interval %v must not be negative", c.LevelInterval))
	}
	if c.MinDecibels >= 0 {
		errs = append(errs, fmt.Errorf("capture.min_decibels %.1f must be negative", c.MinDecibels))
	}

	pr := cfg.Practice
	if pr.ChapterText != "" && pr.ChapterTextFile != "" {
		errs = append(errs, errors.New("practice.chapter_text and practice.chapter_text_file are mutually exclusive"))
	}
	if pr.ChapterDuration < 0 {
		errs = append(errs, fmt.Errorf("practice.chapter_duration %v must not be negative", pr.ChapterDuration))
	}
	if pr.ChapterDuration == 0 && (pr.ChapterText != "" || pr.ChapterTextFile != "") {
		slog.Warn("practice.chapter_duration is not set; the chapter will have no sentences")
	}

	return errors.Join(errs...)
}

func warnUnknownProvider(kind, name string) {
	if name == "" || slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
