// Package stt defines the Engine interface for Speech-to-Text backends.
//
// An Engine transcribes one complete utterance at a time: the caller hands it
// a finished buffer of PCM16 mono audio and receives a single [Result]. This
// batch shape matches the upstream segmenter, which only releases audio once
// an utterance has been finalised by trailing silence — there is no streaming
// path in this pipeline.
//
// Implementations must be safe for concurrent use; the transcription gateway
// may probe an engine from health checks while the listening loop transcribes.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by engines that are configured out or could not
// be initialised. The transcription gateway treats it like any other failure
// and falls back to the remote service.
var ErrUnavailable = errors.New("stt: engine unavailable")

// Segment is a time-aligned span of transcribed text.
type Segment struct {
	// Start and End bound the segment within the utterance.
	Start time.Duration
	End   time.Duration

	// Text is the transcribed content of the segment, whitespace-trimmed.
	Text string
}

// Result is a normalised transcription of one utterance.
type Result struct {
	// Text is the full transcription, segments joined by single spaces.
	Text string

	// Language is the detected or configured language code (e.g. "en").
	// Empty when the engine does not report one.
	Language string

	// Duration is the audio length of the transcribed utterance.
	Duration time.Duration

	// Segments holds per-segment detail when the engine provides it.
	// May be nil.
	Segments []Segment
}

// Engine is the abstraction over any local transcription backend.
type Engine interface {
	// Transcribe converts one utterance of little-endian PCM16 mono audio at
	// sampleRate into text. An empty transcription with a nil error means
	// the engine heard nothing usable; the transcription gateway treats it
	// as a failed tier and falls back to the remote service.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error)

	// Close releases model resources. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Null is the no-op Engine used when native transcription is disabled.
// Transcribe always fails with [ErrUnavailable], pushing the gateway straight
// to its remote fallback.
type Null struct{}

// Transcribe always returns ErrUnavailable.
func (Null) Transcribe(context.Context, []byte, int) (Result, error) {
	return Result{}, ErrUnavailable
}

// Close is a no-op.
func (Null) Close() error { return nil }

// Compile-time interface assertion.
var _ Engine = Null{}
