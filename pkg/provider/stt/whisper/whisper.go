// Package whisper implements [stt.Engine] using the whisper.cpp CGO bindings.
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
//
// The model is loaded once at construction and shared across all Transcribe
// calls; each call runs inference in a fresh whisper context, which the
// bindings allow concurrently over a shared model.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/ambientworks/roomvoice/pkg/provider/stt"
)

const defaultLanguage = "en"

// whisper.cpp models are trained on 16 kHz audio only.
const requiredSampleRate = 16000

// Compile-time assertion that Engine satisfies stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Engine transcribes utterances with a local whisper.cpp model.
type Engine struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithLanguage sets the transcription language code (e.g. "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the engine is no longer needed.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &Engine{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Transcribe runs whisper.cpp inference over one utterance of PCM16 mono
// audio. Only 16 kHz input is accepted; the audio pipeline is configured to
// capture at that rate when native transcription is enabled.
func (e *Engine) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: %w", err)
	}
	if sampleRate != requiredSampleRate {
		return stt.Result{}, fmt.Errorf("whisper: sample rate %d not supported, model requires %d", sampleRate, requiredSampleRate)
	}

	samples := pcmToFloat32(pcm)

	// Each inference gets its own context; contexts are not thread-safe but
	// the model is shared.
	wctx, err := e.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(e.language); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: set language %q: %w", e.language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts    []string
		segments []stt.Segment
	)
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		segments = append(segments, stt.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  text,
		})
	}

	return stt.Result{
		Text:     strings.Join(parts, " "),
		Language: e.language,
		Duration: time.Duration(len(samples)) * time.Second / requiredSampleRate,
		Segments: segments,
	}, nil
}

// Close releases the whisper model.
func (e *Engine) Close() error {
	if e.model != nil {
		err := e.model.Close()
		e.model = nil
		return err
	}
	return nil
}
