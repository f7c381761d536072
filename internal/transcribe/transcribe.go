// Package transcribe turns finalized utterances into text.
//
// The [Gateway] runs a two-tier strategy: a local speech-to-text engine is
// tried first, and when it is unavailable, fails, or produces no text the
// raw audio is uploaded to the backend exactly once. There is no retry
// beyond that single fallback;
// an utterance that both tiers fail on is dropped with an error result so the
// listening loop can move on to the next one.
package transcribe

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ambientworks/roomvoice/internal/backend"
	"github.com/ambientworks/roomvoice/internal/observe"
	"github.com/ambientworks/roomvoice/pkg/provider/stt"
)

// errNoText reports a native engine that returned successfully but produced
// an empty transcription.
var errNoText = errors.New("transcribe: native engine produced no text")

// Source identifies which tier produced a transcription.
type Source string

const (
	// SourceNative is the local speech-to-text engine.
	SourceNative Source = "native"

	// SourceRemote is the backend's transcription endpoint.
	SourceRemote Source = "remote"
)

// Result is the outcome of transcribing one utterance.
type Result struct {
	// Text is the transcription, empty when Success is false.
	Text string

	// Success reports whether any tier produced usable text.
	Success bool

	// Source names the tier that produced Text. Empty on failure.
	Source Source

	// Language is the detected language when the native engine reports one.
	Language string

	// Duration is the audio length when known.
	Duration time.Duration

	// Segments carries per-segment timing from the native engine.
	Segments []stt.Segment

	// Err holds the terminal error when Success is false.
	Err error
}

// Remote uploads raw audio for server-side transcription. *backend.Client
// satisfies this through [backend.Client.TranscribeVoice].
type Remote interface {
	TranscribeVoice(ctx context.Context, pcm []byte, sampleRate int, history []backend.Message) (*backend.VoiceResult, error)
}

// Gateway coordinates the native engine and the remote fallback.
type Gateway struct {
	engine  stt.Engine
	remote  Remote
	metrics *observe.Metrics
	log     *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// NewGateway creates a Gateway. engine may be a [stt.Null] when no local
// model is configured; remote may be nil when no backend is reachable, in
// which case only the native tier runs.
func NewGateway(engine stt.Engine, remote Remote, opts ...Option) *Gateway {
	g := &Gateway{
		engine:  engine,
		remote:  remote,
		metrics: observe.DefaultMetrics(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Transcribe runs the two-tier strategy on one utterance. It never returns a
// nil Result; callers check Success.
func (g *Gateway) Transcribe(ctx context.Context, pcm []byte, sampleRate int) *Result {
	g.metrics.Utterances.Add(ctx, 1)

	res, nativeErr := g.transcribeNative(ctx, pcm, sampleRate)
	if nativeErr == nil {
		return res
	}

	if g.remote == nil {
		g.log.Warn("native transcription failed, no remote fallback configured",
			slog.String("error", nativeErr.Error()))
		g.metrics.TranscriptionErrors.Add(ctx, 1)
		return &Result{Err: nativeErr}
	}

	g.log.Info("falling back to remote transcription",
		slog.String("error", nativeErr.Error()))
	g.metrics.TranscriptionFallbacks.Add(ctx, 1)

	res, remoteErr := g.transcribeRemote(ctx, pcm, sampleRate)
	if remoteErr != nil {
		g.log.Error("remote transcription failed",
			slog.String("native_error", nativeErr.Error()),
			slog.String("remote_error", remoteErr.Error()))
		g.metrics.TranscriptionErrors.Add(ctx, 1)
		return &Result{Err: remoteErr}
	}
	return res
}

func (g *Gateway) transcribeNative(ctx context.Context, pcm []byte, sampleRate int) (*Result, error) {
	start := time.Now()
	out, err := g.engine.Transcribe(ctx, pcm, sampleRate)
	elapsed := time.Since(start)
	g.metrics.TranscriptionDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("source", string(SourceNative))))
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		// An engine that hears nothing counts as a failed tier; the remote
		// fallback gets one shot at the audio.
		return nil, errNoText
	}

	g.log.Debug("native transcription complete",
		slog.Duration("took", elapsed),
		slog.Int("chars", len(text)))
	return &Result{
		Text:     text,
		Success:  true,
		Source:   SourceNative,
		Language: out.Language,
		Duration: out.Duration,
		Segments: out.Segments,
	}, nil
}

func (g *Gateway) transcribeRemote(ctx context.Context, pcm []byte, sampleRate int) (*Result, error) {
	start := time.Now()
	out, err := g.remote.TranscribeVoice(ctx, pcm, sampleRate, nil)
	elapsed := time.Since(start)
	g.metrics.TranscriptionDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("source", string(SourceRemote))))
	if err != nil {
		return nil, err
	}

	g.log.Debug("remote transcription complete",
		slog.Duration("took", elapsed),
		slog.Int("chars", len(out.Transcription)))
	return &Result{
		Text:    strings.TrimSpace(out.Transcription),
		Success: true,
		Source:  SourceRemote,
	}, nil
}
