// Package app wires all roomvoice subsystems into a running client.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the listening loop alongside the diagnostics
// server, and Shutdown tears everything down in order.
//
// For testing, inject test doubles via the [Providers] struct and functional
// options. When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ambientworks/roomvoice/internal/backend"
	"github.com/ambientworks/roomvoice/internal/config"
	"github.com/ambientworks/roomvoice/internal/health"
	"github.com/ambientworks/roomvoice/internal/listen"
	"github.com/ambientworks/roomvoice/internal/observe"
	"github.com/ambientworks/roomvoice/internal/segment"
	"github.com/ambientworks/roomvoice/internal/session"
	"github.com/ambientworks/roomvoice/internal/transcribe"
	"github.com/ambientworks/roomvoice/internal/wake"
	"github.com/ambientworks/roomvoice/pkg/provider/audio"
	"github.com/ambientworks/roomvoice/pkg/provider/stt"
	"github.com/ambientworks/roomvoice/pkg/provider/vad"
)

// Version is the client version reported in telemetry. Overridden at build
// time via -ldflags.
var Version = "dev"

// shutdownTimeout bounds the diagnostics server drain during Run teardown.
const shutdownTimeout = 5 * time.Second

// Providers holds one interface value per provider slot, populated by main.go
// via the config registry.
type Providers struct {
	Audio audio.Source
	VAD   vad.Classifier
	STT   stt.Engine
}

// App owns all subsystem lifetimes and orchestrates the voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	backend  *backend.Client
	detector *wake.Detector
	gateway  *transcribe.Gateway
	session  *session.Session
	listener *listen.Listener
	healthh  *health.Handler

	audioCfg audio.Config
	log      *slog.Logger

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once

	noTelemetry bool
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBackendClient injects a backend client instead of creating one from
// config.
func WithBackendClient(c *backend.Client) Option {
	return func(a *App) { a.backend = c }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithoutTelemetry skips the OpenTelemetry provider setup. Tests use this to
// avoid mutating the global meter provider.
func WithoutTelemetry() Option {
	return func(a *App) { a.noTelemetry = true }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	if !a.noTelemetry {
		shutdown, err := observe.InitProvider(ctx, "roomvoice", Version)
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return shutdown(ctx)
		})
	}

	if a.backend == nil && cfg.Backend.URL != "" {
		var opts []backend.Option
		if cfg.Backend.Timeout > 0 {
			opts = append(opts, backend.WithTimeout(cfg.Backend.Timeout))
		}
		a.backend = backend.New(cfg.Backend.URL, cfg.Room.Name, opts...)
	}

	a.initWake()
	a.initPipeline()
	a.initHealth()

	return a, nil
}

// initWake builds the wake-phrase detector from config.
func (a *App) initWake() {
	var opts []wake.Option
	if t := a.cfg.Wake.SimilarityThreshold; t > 0 {
		opts = append(opts, wake.WithThreshold(t))
	}
	opts = append(opts,
		wake.WithPhonetic(a.cfg.Wake.PhoneticEnabled()),
		wake.WithVariations(a.cfg.Wake.Variations...),
	)
	a.detector = wake.New(a.cfg.Wake.Word, opts...)
}

// initPipeline builds the audio configuration, segmenter, transcription
// gateway, command session and listening loop.
func (a *App) initPipeline() {
	sampleRate := a.cfg.Audio.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	frameMs := a.cfg.Audio.FrameMs
	if frameMs == 0 {
		frameMs = 30
	}
	a.audioCfg = audio.Config{
		SampleRate: sampleRate,
		Channels:   1,
		FrameSize:  sampleRate * frameMs / 1000,
	}

	seg := segment.New(a.providers.VAD, segment.Config{
		SampleRate:       sampleRate,
		FrameBytes:       a.audioCfg.FrameBytes(),
		SilenceThreshold: a.cfg.VAD.SilenceThreshold,
		MinSpeechFrames:  a.cfg.VAD.MinSpeechFrames,
	})

	var remote transcribe.Remote
	if a.backend != nil {
		remote = a.backend
	}
	a.gateway = transcribe.NewGateway(a.providers.STT, remote,
		transcribe.WithLogger(a.log))

	var dispatcher session.Dispatcher = nullDispatcher{}
	if a.backend != nil {
		dispatcher = a.backend
	}
	a.session = session.New(a.detector, dispatcher, session.Config{
		RoomName:   a.cfg.Room.Name,
		Timeout:    a.cfg.Session.CommandTimeout,
		MaxHistory: a.cfg.Session.MaxHistory,
	}, session.WithLogger(a.log))

	a.listener = listen.New(a.providers.Audio, a.audioCfg, seg, a.gateway, a.session,
		listen.WithLogger(a.log))
}

// initHealth builds the health handler backing the diagnostics server.
func (a *App) initHealth() {
	var checkers []health.Checker
	if a.backend != nil {
		checkers = append(checkers, health.BackendChecker(a.backend))
	}
	checkers = append(checkers, health.ListeningChecker(a.listener.Running))

	a.healthh = health.New(checkers...)
	a.healthh.SetStatus(a.Status)
}

// Status returns the aggregated diagnostics snapshot served at /statusz.
func (a *App) Status() any {
	return map[string]any{
		"room":     a.cfg.Room.Name,
		"wake":     a.detector.Status(),
		"session":  a.session.Status(),
		"listener": a.listener.Status(),
	}
}

// Detector exposes the wake detector, used by the -test-wake self-test.
func (a *App) Detector() *wake.Detector { return a.detector }

// ApplyConfig applies hot-reloadable changes from a newly loaded config.
// Wake variation additions take effect immediately; other wake or session
// changes need a restart and are only logged.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Any() {
		return
	}
	if d.WakeChanged {
		if old.Wake.Word == new.Wake.Word &&
			old.Wake.SimilarityThreshold == new.Wake.SimilarityThreshold &&
			old.Wake.PhoneticEnabled() == new.Wake.PhoneticEnabled() {
			for _, v := range new.Wake.Variations {
				a.detector.AddVariation(v)
			}
			a.log.Info("wake variations reloaded",
				slog.Int("count", len(new.Wake.Variations)))
		} else {
			a.log.Warn("wake phrase settings changed; restart required to apply")
		}
	}
	if d.SessionChanged {
		a.log.Warn("session settings changed; restart required to apply")
	}
}

// Run starts the listening loop and, when configured, the diagnostics HTTP
// server. It blocks until ctx is cancelled or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.listener.Run(ctx)
	})

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		mux := http.NewServeMux()
		a.healthh.Register(mux)
		mux.Handle("GET /metrics", promhttp.Handler())

		srv := &http.Server{Addr: addr, Handler: mux}

		g.Go(func() error {
			a.log.Info("diagnostics server listening", slog.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("diagnostics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", slog.Int("closers", len(a.closers)))

		if err := a.providers.STT.Close(); err != nil {
			a.log.Warn("stt engine close error", slog.String("error", err.Error()))
		}
		if err := a.providers.VAD.Close(); err != nil {
			a.log.Warn("vad close error", slog.String("error", err.Error()))
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded",
					slog.Int("remaining", len(a.closers)-i))
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", slog.Int("index", i),
					slog.String("error", err.Error()))
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// nullDispatcher is used when no backend is configured; commands are logged
// and acknowledged locally.
type nullDispatcher struct{}

func (nullDispatcher) SendCommand(_ context.Context, message string, _ []backend.Message) (*backend.CommandResult, error) {
	slog.Info("no backend configured, command discarded", slog.String("command", message))
	return &backend.CommandResult{}, nil
}
