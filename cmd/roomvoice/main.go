// Command roomvoice is the local voice-command client for a room.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ambientworks/roomvoice/internal/app"
	"github.com/ambientworks/roomvoice/internal/backend"
	"github.com/ambientworks/roomvoice/internal/config"
	"github.com/ambientworks/roomvoice/internal/wake"
	"github.com/ambientworks/roomvoice/pkg/provider/audio"
	"github.com/ambientworks/roomvoice/pkg/provider/audio/portaudio"
	"github.com/ambientworks/roomvoice/pkg/provider/stt"
	"github.com/ambientworks/roomvoice/pkg/provider/stt/whisper"
	"github.com/ambientworks/roomvoice/pkg/provider/vad"
	webrtcvad "github.com/ambientworks/roomvoice/pkg/provider/vad/webrtc"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	testWake := flag.Bool("test-wake", false, "interactively test wake-phrase detection against stdin lines, then exit")
	chat := flag.Bool("chat", false, "interactively send text commands to the backend, then exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "roomvoice: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "roomvoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(logLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("roomvoice starting",
		"config", *configPath,
		"room", cfg.Room.Name,
		"wake_word", cfg.Wake.Word,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Wake-phrase self-test mode ────────────────────────────────────────────
	if *testWake {
		return runWakeTest(cfg)
	}

	// ── Interactive chat mode ─────────────────────────────────────────────────
	if *chat {
		return runChat(cfg)
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if d := config.Diff(old, new); d.LogLevelChanged {
			levelVar.Set(logLevel(d.NewLogLevel))
			slog.Info("log level reloaded", "level", d.NewLogLevel)
		}
		application.ApplyConfig(old, new)
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("client ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Audio capture ─────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(*config.Config) (audio.Source, error) {
		return portaudio.New(), nil
	})
	reg.RegisterAudio("null", func(*config.Config) (audio.Source, error) {
		return audio.NullSource{}, nil
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("webrtc", func(cfg *config.Config) (vad.Classifier, error) {
		return webrtcvad.New(cfg.VAD.Aggressiveness)
	})
	reg.RegisterVAD("always-on", func(*config.Config) (vad.Classifier, error) {
		return vad.AssumeSpeech{}, nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(cfg *config.Config) (stt.Engine, error) {
		var opts []whisper.Option
		if cfg.STT.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.STT.Language))
		}
		return whisper.New(cfg.STT.ModelPath, opts...)
	})
	reg.RegisterSTT("null", func(*config.Config) (stt.Engine, error) {
		return stt.Null{}, nil
	})
}

// buildProviders instantiates the providers named in cfg using the registry.
// Unset slots fall back to sensible defaults: webrtc VAD, portaudio capture,
// and whisper when a model path is configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	resolved := *cfg
	if resolved.Audio.Source == "" {
		resolved.Audio.Source = "portaudio"
	}
	if resolved.VAD.Engine == "" {
		resolved.VAD.Engine = "webrtc"
	}
	if resolved.STT.Engine == "" {
		if resolved.STT.ModelPath != "" {
			resolved.STT.Engine = "whisper"
		} else {
			resolved.STT.Engine = "null"
		}
	}

	ps := &app.Providers{}
	var err error

	if ps.Audio, err = reg.CreateAudio(&resolved); err != nil {
		return nil, fmt.Errorf("create audio source %q: %w", resolved.Audio.Source, err)
	}
	slog.Info("provider created", "kind", "audio", "name", resolved.Audio.Source)

	if ps.VAD, err = reg.CreateVAD(&resolved); err != nil {
		return nil, fmt.Errorf("create vad engine %q: %w", resolved.VAD.Engine, err)
	}
	slog.Info("provider created", "kind", "vad", "name", resolved.VAD.Engine)

	if ps.STT, err = reg.CreateSTT(&resolved); err != nil {
		return nil, fmt.Errorf("create stt engine %q: %w", resolved.STT.Engine, err)
	}
	slog.Info("provider created", "kind", "stt", "name", resolved.STT.Engine)

	return ps, nil
}

// ── Wake-phrase self-test ─────────────────────────────────────────────────────

// runWakeTest builds a detector from cfg and evaluates each stdin line
// against it, printing the detection result. Useful for tuning the wake word
// and its variations without a microphone.
func runWakeTest(cfg *config.Config) int {
	var opts []wake.Option
	if t := cfg.Wake.SimilarityThreshold; t > 0 {
		opts = append(opts, wake.WithThreshold(t))
	}
	opts = append(opts,
		wake.WithPhonetic(cfg.Wake.PhoneticEnabled()),
		wake.WithVariations(cfg.Wake.Variations...),
	)
	detector := wake.New(cfg.Wake.Word, opts...)

	status := detector.Status()
	fmt.Printf("wake word: %q  threshold: %.2f  phonetic: %v\n",
		status.WakeWord, status.Threshold, status.Phonetic)
	fmt.Printf("variations: %s\n", strings.Join(status.Variations, ", "))
	fmt.Println("type a phrase per line (Ctrl+D to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		det := detector.Detect(line)
		if det.Detected {
			fmt.Printf("  detected  method=%s matched=%q confidence=%.2f\n",
				det.Method, det.Matched, det.Confidence)
		} else {
			fmt.Println("  not detected")
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "roomvoice: read stdin: %v\n", err)
		return 1
	}
	return 0
}

// ── Interactive chat ──────────────────────────────────────────────────────────

// runChat sends each stdin line as a text command to the backend's chat
// endpoint and prints the reply. Useful for exercising the backend without a
// microphone; conversation history is carried across lines like the voice
// path does.
func runChat(cfg *config.Config) int {
	if cfg.Backend.URL == "" {
		fmt.Fprintln(os.Stderr, "roomvoice: chat mode needs backend.url in the config")
		return 1
	}

	var opts []backend.Option
	if cfg.Backend.Timeout > 0 {
		opts = append(opts, backend.WithTimeout(cfg.Backend.Timeout))
	}
	client := backend.New(cfg.Backend.URL, cfg.Room.Name, opts...)

	maxHistory := cfg.Session.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 10
	}

	fmt.Printf("chatting with %s as room %q\n", client.BaseURL(), cfg.Room.Name)
	fmt.Println("type a command per line (\"quit\" or Ctrl+D to exit):")

	var history []backend.Message
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") {
			break
		}

		reply, err := client.Chat(context.Background(), line, history)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  error: %v\n", err)
			continue
		}
		fmt.Printf("  %s\n", reply)

		history = append(history,
			backend.Message{Role: "user", Content: line},
			backend.Message{Role: "assistant", Content: reply},
		)
		if limit := 2 * maxHistory; len(history) > limit {
			history = history[len(history)-limit:]
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "roomvoice: read stdin: %v\n", err)
		return 1
	}
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func logLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
