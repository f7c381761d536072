package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"audio": {"portaudio", "null"},
	"vad":   {"webrtc", "always-on"},
	"stt":   {"whisper", "null"},
}

// validSampleRates matches the rates the WebRTC VAD accepts.
var validSampleRates = []int{8000, 16000, 32000, 48000}

// validFrameMs matches the frame durations the WebRTC VAD accepts.
var validFrameMs = []int{10, 20, 30}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Room.Name == "" {
		errs = append(errs, errors.New("room.name is required"))
	}

	if cfg.Backend.URL == "" {
		slog.Warn("backend.url is empty; commands cannot be dispatched and remote transcription is unavailable")
	} else if u, err := url.Parse(cfg.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.url %q is not an absolute URL", cfg.Backend.URL))
	}
	if cfg.Backend.Timeout < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout %s is negative", cfg.Backend.Timeout))
	}

	validateProviderName("audio", cfg.Audio.Source)
	validateProviderName("vad", cfg.VAD.Engine)
	validateProviderName("stt", cfg.STT.Engine)

	if sr := cfg.Audio.SampleRate; sr != 0 && !slices.Contains(validSampleRates, sr) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is invalid; valid values: 8000, 16000, 32000, 48000", sr))
	}
	if ms := cfg.Audio.FrameMs; ms != 0 && !slices.Contains(validFrameMs, ms) {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is invalid; valid values: 10, 20, 30", ms))
	}

	if a := cfg.VAD.Aggressiveness; a < 0 || a > 3 {
		errs = append(errs, fmt.Errorf("vad.aggressiveness %d is out of range [0, 3]", a))
	}
	if cfg.VAD.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %d is negative", cfg.VAD.SilenceThreshold))
	}
	if cfg.VAD.MinSpeechFrames < 0 {
		errs = append(errs, fmt.Errorf("vad.min_speech_frames %d is negative", cfg.VAD.MinSpeechFrames))
	}

	if cfg.Wake.Word == "" {
		errs = append(errs, errors.New("wake.word is required"))
	}
	if t := cfg.Wake.SimilarityThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("wake.similarity_threshold %.2f is out of range [0, 1]", t))
	}

	if cfg.STT.Engine == "whisper" && cfg.STT.ModelPath == "" {
		errs = append(errs, errors.New("stt.model_path is required when stt.engine is whisper"))
	}
	if cfg.STT.ModelPath == "" && cfg.Backend.URL == "" {
		slog.Warn("neither stt.model_path nor backend.url is set; utterances cannot be transcribed")
	}

	if cfg.Session.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.command_timeout %s is negative", cfg.Session.CommandTimeout))
	}
	if cfg.Session.MaxHistory < 0 {
		errs = append(errs, fmt.Errorf("session.max_history %d is negative", cfg.Session.MaxHistory))
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
