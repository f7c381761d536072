// Package config provides the configuration schema, loader, and provider
// registry for the roomvoice client.
package config

import "time"

// LogLevel controls log verbosity for the roomvoice client.
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

// Config is the root configuration structure for roomvoice.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Room    RoomConfig    `yaml:"room"`
	Backend BackendConfig `yaml:"backend"`
	Audio   AudioConfig   `yaml:"audio"`
	VAD     VADConfig     `yaml:"vad"`
	Wake    WakeConfig    `yaml:"wake"`
	STT     STTConfig     `yaml:"stt"`
	Session SessionConfig `yaml:"session"`
	Server  ServerConfig  `yaml:"server"`
}

// RoomConfig identifies this client installation.
type RoomConfig struct {
	// Name is the room identifier sent with every backend request
	// (e.g., "kitchen", "living-room").
	Name string `yaml:"name"`
}

// BackendConfig holds connection settings for the assistant backend.
type BackendConfig struct {
	// URL is the backend base URL (e.g., "http://homehub.local:5000").
	URL string `yaml:"url"`

	// Timeout bounds each backend request. Defaults to 30s when zero.
	Timeout time.Duration `yaml:"timeout"`
}

// AudioConfig describes the microphone capture format.
type AudioConfig struct {
	// Source selects the registered capture implementation
	// (e.g., "portaudio", "null").
	Source string `yaml:"source"`

	// SampleRate is the capture rate in Hz. Must be one of 8000, 16000,
	// 32000 or 48000 for the VAD. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the frame duration in milliseconds. Must be 10, 20 or 30.
	// Defaults to 30.
	FrameMs int `yaml:"frame_ms"`
}

// VADConfig tunes voice activity detection and segmentation.
type VADConfig struct {
	// Engine selects the registered classifier implementation
	// (e.g., "webrtc", "always-on").
	Engine string `yaml:"engine"`

	// Aggressiveness is the WebRTC VAD mode in [0, 3]; higher filters more
	// non-speech. Defaults to 1.
	Aggressiveness int `yaml:"aggressiveness"`

	// SilenceThreshold is the consecutive-silence frame count that ends an
	// utterance. Defaults to 40 when zero.
	SilenceThreshold int `yaml:"silence_threshold"`

	// MinSpeechFrames is the minimum speech frame count for an utterance to
	// be forwarded. Defaults to 3 when zero.
	MinSpeechFrames int `yaml:"min_speech_frames"`
}

// WakeConfig tunes wake-phrase detection.
type WakeConfig struct {
	// Word is the primary wake phrase (e.g., "aida"). Required.
	Word string `yaml:"word"`

	// Variations lists additional accepted spellings of the wake phrase.
	Variations []string `yaml:"variations"`

	// SimilarityThreshold is the minimum edit similarity for fuzzy and
	// multi-word matches, in (0, 1]. Defaults to 0.6 when zero.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// Phonetic enables sound-alike matching. Defaults to true; set the
	// pointer to false to disable.
	Phonetic *bool `yaml:"phonetic"`
}

// STTConfig configures the local speech-to-text engine. With an empty
// ModelPath the client relies on the backend for transcription.
type STTConfig struct {
	// Engine selects the registered engine implementation
	// (e.g., "whisper", "null").
	Engine string `yaml:"engine"`

	// ModelPath is the filesystem path to a ggml whisper model.
	ModelPath string `yaml:"model_path"`

	// Language is the transcription language code (e.g., "en").
	// Empty means auto-detect.
	Language string `yaml:"language"`
}

// SessionConfig tunes the wake/command state machine.
type SessionConfig struct {
	// CommandTimeout is the command window measured from the last wake-phrase
	// detection; once it elapses, follow-up commands need the wake phrase
	// again. Defaults to 120s when zero.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// MaxHistory is the number of conversational exchanges kept and sent
	// with each command. Defaults to 10 when zero.
	MaxHistory int `yaml:"max_history"`
}

// ServerConfig holds settings for the local diagnostics HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the diagnostics server listens on
	// (e.g., ":9090"). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// PhoneticEnabled resolves the optional Phonetic flag, defaulting to true.
func (w WakeConfig) PhoneticEnabled() bool {
	return w.Phonetic == nil || *w.Phonetic
}
