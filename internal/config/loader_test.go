package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/ambientworks/roomvoice/internal/config"
)

const minimalYAML = `
room:
  name: kitchen
wake:
  word: aida
`

func TestLoadFromReader_Minimal(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Room.Name != "kitchen" {
		t.Errorf("Room.Name = %q, want %q", cfg.Room.Name, "kitchen")
	}
	if cfg.Wake.Word != "aida" {
		t.Errorf("Wake.Word = %q, want %q", cfg.Wake.Word, "aida")
	}
	if !cfg.Wake.PhoneticEnabled() {
		t.Error("PhoneticEnabled() = false by default, want true")
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
room:
  name: living-room
backend:
  url: http://homehub.local:5000
  timeout: 15s
audio:
  source: portaudio
  sample_rate: 16000
  frame_ms: 30
vad:
  engine: webrtc
  aggressiveness: 2
  silence_threshold: 50
  min_speech_frames: 4
wake:
  word: aida
  variations: [ada, ida]
  similarity_threshold: 0.7
  phonetic: false
stt:
  engine: whisper
  model_path: /models/ggml-base.en.bin
  language: en
session:
  command_timeout: 45s
  max_history: 5
server:
  listen_addr: ":9090"
  log_level: debug
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Backend.Timeout != 15*time.Second {
		t.Errorf("Backend.Timeout = %s, want 15s", cfg.Backend.Timeout)
	}
	if cfg.VAD.Aggressiveness != 2 {
		t.Errorf("VAD.Aggressiveness = %d, want 2", cfg.VAD.Aggressiveness)
	}
	if len(cfg.Wake.Variations) != 2 {
		t.Errorf("Wake.Variations = %v, want 2 entries", cfg.Wake.Variations)
	}
	if cfg.Wake.PhoneticEnabled() {
		t.Error("PhoneticEnabled() = true, want false")
	}
	if cfg.Session.CommandTimeout != 45*time.Second {
		t.Errorf("Session.CommandTimeout = %s, want 45s", cfg.Session.CommandTimeout)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
room:
  name: kitchen
wake:
  word: aida
wakeword: typo
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_RoomNameRequired(t *testing.T) {
	t.Parallel()
	yaml := `
wake:
  word: aida
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing room name, got nil")
	}
	if !strings.Contains(err.Error(), "room.name") {
		t.Errorf("error should mention room.name, got: %v", err)
	}
}

func TestValidate_WakeWordRequired(t *testing.T) {
	t.Parallel()
	yaml := `
room:
  name: kitchen
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing wake word, got nil")
	}
	if !strings.Contains(err.Error(), "wake.word") {
		t.Errorf("error should mention wake.word, got: %v", err)
	}
}

func TestValidate_InvalidSampleRate(t *testing.T) {
	t.Parallel()
	yaml := `
room:
  name: kitchen
wake:
  word: aida
audio:
  sample_rate: 44100
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unsupported sample rate, got nil")
	}
	if !strings.Contains(err.Error(), "sample_rate") {
		t.Errorf("error should mention sample_rate, got: %v", err)
	}
}

func TestValidate_AggressivenessOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
room:
  name: kitchen
wake:
  word: aida
vad:
  aggressiveness: 7
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range aggressiveness, got nil")
	}
	if !strings.Contains(err.Error(), "aggressiveness") {
		t.Errorf("error should mention aggressiveness, got: %v", err)
	}
}

func TestValidate_WhisperRequiresModelPath(t *testing.T) {
	t.Parallel()
	yaml := `
room:
  name: kitchen
wake:
  word: aida
stt:
  engine: whisper
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for whisper engine without model path, got nil")
	}
	if !strings.Contains(err.Error(), "model_path") {
		t.Errorf("error should mention model_path, got: %v", err)
	}
}

func TestValidate_InvalidBackendURL(t *testing.T) {
	t.Parallel()
	yaml := `
room:
  name: kitchen
wake:
  word: aida
backend:
  url: "not a url"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for relative backend URL, got nil")
	}
	if !strings.Contains(err.Error(), "backend.url") {
		t.Errorf("error should mention backend.url, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
room:
  name: kitchen
wake:
  word: aida
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_JoinsMultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
vad:
  aggressiveness: 9
server:
  log_level: bananas
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined errors, got nil")
	}
	for _, want := range []string{"room.name", "wake.word", "aggressiveness", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}
