// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the read-along engine.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to a [slog.Level]. Unset and unknown levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [LoadFromReader] to unset fields.
const (
	DefaultListenAddr    = "127.0.0.1:9464"
	DefaultSampleRate    = 16000
	DefaultChannels      = 1
	DefaultLevelInterval = 50 * time.Millisecond
	DefaultMinDecibels   = -60.0
)

// Config is the root configuration structure. It is typically loaded with
// [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Capture   CaptureConfig   `yaml:"capture"`
	Practice  PracticeConfig  `yaml:"practice"`
}

// ServerConfig holds the ops server and logging settings.
type ServerConfig struct {
	// ListenAddr is the address of the ops server serving /metrics,
	// /healthz and /readyz. Set to "-" to disable it.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is hot-reloaded by [Watcher].
	LogLevel LogLevel `yaml:"log_level"`
}

// OpsDisabled reports whether the ops server is switched off.
func (s ServerConfig) OpsDisabled() bool { return s.ListenAddr == "-" }

// ProvidersConfig selects the implementation of each collaborator. Each
// entry names a factory registered in the [Registry].
type ProvidersConfig struct {
	STT              ProviderEntry   `yaml:"stt"`
	STTFallbacks     []ProviderEntry `yaml:"stt_fallbacks"`
	Scoring          ProviderEntry   `yaml:"scoring"`
	ScoringFallbacks []ProviderEntry `yaml:"scoring_fallbacks"`
	Microphone       ProviderEntry   `yaml:"microphone"`
	Playback         ProviderEntry   `yaml:"playback"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "deepgram").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API, if any. Values of the
	// form "${VAR}" are read from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g. "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific values.
	Options map[string]any `yaml:"options"`
}

// ResolvedAPIKey returns APIKey with a "${VAR}" reference expanded.
func (e ProviderEntry) ResolvedAPIKey() string {
	k := e.APIKey
	if strings.HasPrefix(k, "${") && strings.HasSuffix(k, "}") {
		return os.Getenv(k[2 : len(k)-1])
	}
	return k
}

// OptString returns Options[key] as a string, or "" when absent.
func (e ProviderEntry) OptString(key string) string {
	if v, ok := e.Options[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// OptStrings returns Options[key] as a string slice. A single string is
// returned as a one-element slice.
func (e ProviderEntry) OptStrings(key string) []string {
	switch v := e.Options[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			out = append(out, fmt.Sprint(x))
		}
		return out
	}
	return nil
}

// OptDuration parses Options[key] as a [time.Duration]. It returns def when
// the key is absent and an error when the value does not parse.
func (e ProviderEntry) OptDuration(key string, def time.Duration) (time.Duration, error) {
	s := e.OptString(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: %s option %q: %w", e.Name, key, err)
	}
	return d, nil
}

// OptFloat returns Options[key] as a float64, or def when absent or not a
// number.
func (e ProviderEntry) OptFloat(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return def
}

// CaptureConfig tunes the audio capture session.
type CaptureConfig struct {
	// SampleRate and Channels describe the PCM sent to the recognizer and
	// written to recording artifacts.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// Language is the BCP-47 tag passed to the recognizer.
	Language string `yaml:"language"`

	// LevelInterval is the cadence of audio-level updates.
	LevelInterval time.Duration `yaml:"level_interval"`

	// MinDecibels is the floor of the level-meter window; 0 dBFS is the top.
	MinDecibels float64 `yaml:"min_decibels"`

	// ArtifactDir is where recordings are stored. Default: a "readalong"
	// directory under the OS temp dir.
	ArtifactDir string `yaml:"artifact_dir"`
}

// PracticeConfig describes the chapter being practised.
type PracticeConfig struct {
	// ChapterText is the chapter's text. Mutually exclusive with
	// ChapterTextFile.
	ChapterText string `yaml:"chapter_text"`

	// ChapterTextFile is a path to a UTF-8 file holding the chapter's text.
	ChapterTextFile string `yaml:"chapter_text_file"`

	// ChapterDuration is the length of the chapter's reference audio.
	ChapterDuration time.Duration `yaml:"chapter_duration"`

	// Media identifies the chapter's reference audio for the player.
	Media string `yaml:"media"`

	// HistoryFile, when set, receives one JSON line per finished session.
	// Relative paths are resolved against the config file's directory.
	HistoryFile string `yaml:"history_file"`
}

// LoadText returns the chapter text, reading ChapterTextFile when set.
// Relative paths are resolved against baseDir.
func (p PracticeConfig) LoadText(baseDir string) (string, error) {
	if p.ChapterTextFile == "" {
		return p.ChapterText, nil
	}
	path := p.ChapterTextFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read chapter text: %w", err)
	}
	return string(b), nil
}

// HistoryPath returns HistoryFile resolved against baseDir, or "" when
// history is disabled.
func (p PracticeConfig) HistoryPath(baseDir string) string {
	if p.HistoryFile == "" || filepath.IsAbs(p.HistoryFile) {
		return p.HistoryFile
	}
	return filepath.Join(baseDir, p.HistoryFile)
}

// applyDefaults fills unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	c := &cfg.Capture
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.LevelInterval == 0 {
		c.LevelInterval = DefaultLevelInterval
	}
	if c.MinDecibels == 0 {
		c.MinDecibels = DefaultMinDecibels
	}
	if c.ArtifactDir == "" {
		c.ArtifactDir = filepath.Join(os.TempDir(), "readalong")
	}
	if cfg.Providers.Playback.Name == "" {
		cfg.Providers.Playback.Name = "clock"
	}
}
