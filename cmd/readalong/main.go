// Command readalong is an interactive read-along practice tool. It plays the
// reference reading of each sentence of a chapter, records the user reading
// it back, compares the transcript with the text, and asks a scoring service
// for pronunciation feedback.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/readalong/internal/capture"
	"github.com/MrWong99/readalong/internal/config"
	"github.com/MrWong99/readalong/internal/health"
	"github.com/MrWong99/readalong/internal/history"
	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/internal/practice"
	"github.com/MrWong99/readalong/pkg/audio"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "readalong: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "readalong: %v\n", err)
		}
		return 1
	}
	text, err := cfg.Practice.LoadText(filepath.Dir(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "readalong: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("readalong starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	watcher, err := config.NewWatcher(*configPath, func(old, cur *config.Config) {
		if old.Server.LogLevel != cur.Server.LogLevel {
			level.Set(cur.Server.LogLevel.Slog())
			slog.Info("log level changed", "from", old.Server.LogLevel, "to", cur.Server.LogLevel)
		}
		if old.Providers.STT.Name != cur.Providers.STT.Name || old.Practice != cur.Practice {
			slog.Warn("config changed; provider and chapter changes apply on restart")
		}
	})
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	// Must precede the first use of observe.DefaultMetrics.
	var tel *observe.Telemetry
	if !cfg.Server.OpsDisabled() {
		tel, err = observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			slog.Error("failed to init telemetry", "err", err)
			return 1
		}
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Practice session ──────────────────────────────────────────────────────
	recorder := capture.New(capture.Config{
		Format:         audio.Format{SampleRate: cfg.Capture.SampleRate, Channels: cfg.Capture.Channels},
		Language:       cfg.Capture.Language,
		LevelInterval:  cfg.Capture.LevelInterval,
		MinDecibels:    cfg.Capture.MinDecibels,
		Artifacts:      audio.NewArtifactStore(cfg.Capture.ArtifactDir),
		RecognizerName: cfg.Providers.STT.Name,
	}, capture.Deps{
		Authorizer: capture.StaticAuthorizer(true),
		Microphone: providers.Microphone,
		STT:        providers.STT,
		Metrics:    metrics,
	})
	if _, err := recorder.RequestAuthorization(ctx); err != nil {
		slog.Error("authorization failed", "err", err)
		return 1
	}

	ctrl, err := practice.New(practice.Config{
		ChapterText:     text,
		ChapterDuration: cfg.Practice.ChapterDuration,
		Media:           cfg.Practice.Media,
	}, practice.Deps{
		Recorder: recorder,
		Player:   providers.Player,
		Scorer:   providers.Scoring,
		Metrics:  metrics,
	})
	if err != nil {
		slog.Error("failed to create practice session", "err", err)
		return 1
	}

	printStartupSummary(cfg, ctrl)

	var hist *history.FileStore
	if path := cfg.Practice.HistoryPath(filepath.Dir(*configPath)); path != "" {
		hist = history.NewFileStore(path)
		printPreviousSession(hist, cfg.Practice.Media)
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if tel != nil {
		srv := newOpsServer(cfg.Server.ListenAddr, tel, metrics, providers)
		ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
		if err != nil {
			slog.Error("failed to listen", "addr", cfg.Server.ListenAddr, "err", err)
			return 1
		}
		g.Go(func() error {
			slog.Info("ops server listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	r := newREPL(ctrl, recorder, providers.Player, os.Stdin, os.Stdout)
	g.Go(func() error {
		err := r.run(gctx)
		// Quitting the REPL ends the process.
		stop()
		return err
	})

	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down")
	exit := 0
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		exit = 1
	}
	if hist != nil {
		saveHistory(hist, ctrl, cfg.Practice.Media)
	}
	if err := ctrl.Close(); err != nil {
		slog.Warn("practice session close error", "err", err)
	}
	if tel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return exit
}

// newOpsServer serves /metrics, /healthz and /readyz behind the tracing and
// metrics middleware.
func newOpsServer(addr string, tel *observe.Telemetry, m *observe.Metrics, ps *Providers) *http.Server {
	checks := []health.Checker{
		health.Configured("stt", ps.STT != nil),
		health.Configured("microphone", ps.Microphone != nil),
		health.Breakers("stt_breakers", ps.STTBreakers...),
	}
	if ps.Scoring != nil {
		checks = append(checks, health.Breakers("scoring_breakers", ps.ScoringBreakers...))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", tel.Handler())
	health.New(checks...).Register(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── History ───────────────────────────────────────────────────────────────────

func printPreviousSession(hist *history.FileStore, media string) {
	last, ok, err := hist.Latest(media)
	if err != nil {
		slog.Warn("failed to read practice history", "path", hist.Path(), "err", err)
		return
	}
	if !ok {
		return
	}
	fmt.Printf("Last practised %s: %d of %d sentences, word accuracy %s",
		last.Timestamp.Local().Format(time.DateTime), last.CompletedSentences, last.TotalSentences, pct(last.AverageWordAccuracy))
	if last.ScoredSentences > 0 {
		fmt.Printf(", overall score %s", pct(last.OverallScore))
	}
	fmt.Println()
}

// saveHistory records the session unless nothing was recorded.
func saveHistory(hist *history.FileStore, ctrl *practice.Controller, media string) {
	sum := ctrl.Summary()
	if sum.CompletedSentences == 0 {
		return
	}
	rec := history.NewRecord(ctrl.ID(), media, sum, ctrl.Sentences())
	if err := hist.Save(rec); err != nil {
		slog.Warn("failed to save practice history", "path", hist.Path(), "err", err)
		return
	}
	slog.Info("practice history saved", "path", hist.Path(), "completed", sum.CompletedSentences)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, ctrl *practice.Controller) {
	st := ctrl.Snapshot()
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        readalong: startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Scoring", cfg.Providers.Scoring.Name, cfg.Providers.Scoring.Model)
	printProvider("Microphone", cfg.Providers.Microphone.Name, "")
	printProvider("Playback", cfg.Providers.Playback.Name, "")
	fmt.Printf("║  Sentences       : %-19d ║\n", st.Total)
	fmt.Printf("║  Chapter length  : %-19s ║\n", cfg.Practice.ChapterDuration)
	if cfg.Server.OpsDisabled() {
		fmt.Printf("║  Ops server      : %-19s ║\n", "(disabled)")
	} else {
		fmt.Printf("║  Ops server      : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
