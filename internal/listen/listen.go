// Package listen runs the capture loop that feeds the voice pipeline.
//
// A [Listener] reads PCM frames from an audio source, hands them to the
// segmenter, and pushes every finalized utterance through transcription and
// the command session. It owns the lifetime of the capture stream: cancel
// the context passed to [Listener.Run] and the stream is closed and the loop
// drains out.
package listen

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ambientworks/roomvoice/internal/observe"
	"github.com/ambientworks/roomvoice/internal/segment"
	"github.com/ambientworks/roomvoice/internal/session"
	"github.com/ambientworks/roomvoice/internal/transcribe"
	"github.com/ambientworks/roomvoice/pkg/provider/audio"
)

// timeoutCheckEvery is how many loop iterations pass between session timeout
// checks. At 30 ms frames this lands roughly every three seconds of silence.
const timeoutCheckEvery = 100

// Transcriber turns a finalized utterance into text. *transcribe.Gateway
// satisfies this.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) *transcribe.Result
}

// Handler consumes transcriptions. *session.Session satisfies this.
type Handler interface {
	HandleTranscription(ctx context.Context, text string) (session.Outcome, error)
	CheckTimeout()
}

// Status is a point-in-time snapshot of a Listener for diagnostics.
type Status struct {
	Running     bool  `json:"running"`
	Utterances  int64 `json:"utterances"`
	Transcribed int64 `json:"transcribed"`
	Dispatched  int64 `json:"dispatched"`
	Dropped     int64 `json:"dropped"`
}

// Listener is the capture loop worker. Create one with [New]; Run may only
// be called once at a time.
type Listener struct {
	source      audio.Source
	audioCfg    audio.Config
	segmenter   *segment.Segmenter
	transcriber Transcriber
	handler     Handler
	metrics     *observe.Metrics
	log         *slog.Logger

	running     atomic.Bool
	utterances  atomic.Int64
	transcribed atomic.Int64
	dispatched  atomic.Int64
	dropped     atomic.Int64
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Listener) { w.log = l }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Listener) { w.metrics = m }
}

// New creates a Listener over the given pipeline stages.
func New(source audio.Source, cfg audio.Config, seg *segment.Segmenter, tr Transcriber, h Handler, opts ...Option) *Listener {
	w := &Listener{
		source:      source,
		audioCfg:    cfg,
		segmenter:   seg,
		transcriber: tr,
		handler:     h,
		metrics:     observe.DefaultMetrics(),
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run opens the capture stream and processes frames until ctx is cancelled
// or the stream reports closure. A final in-progress utterance is flushed
// through the pipeline before returning. Run returns nil on orderly
// shutdown.
func (w *Listener) Run(ctx context.Context) error {
	stream, err := w.source.Open(w.audioCfg)
	if err != nil {
		return err
	}

	w.running.Store(true)
	w.metrics.Listening.Add(ctx, 1)
	defer func() {
		w.running.Store(false)
		w.metrics.Listening.Add(context.WithoutCancel(ctx), -1)
	}()

	// Close unblocks a pending ReadFrame when ctx is cancelled. The
	// WaitGroup keeps Close from racing past Run's return.
	var wg sync.WaitGroup
	stopWatch := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
		case <-stopWatch:
		}
		if err := stream.Close(); err != nil {
			w.log.Warn("close capture stream", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		close(stopWatch)
		wg.Wait()
	}()

	w.log.Info("listening loop started",
		slog.Int("sample_rate", w.audioCfg.SampleRate),
		slog.Duration("frame", w.audioCfg.FrameDuration()))

	for i := 0; ; i++ {
		if ctx.Err() != nil {
			w.flush(context.WithoutCancel(ctx))
			return nil
		}
		if i%timeoutCheckEvery == 0 {
			w.handler.CheckTimeout()
		}

		frame, err := stream.ReadFrame()
		switch {
		case err == nil:
		case errors.Is(err, audio.ErrClosed) || errors.Is(err, context.Canceled):
			w.flush(context.WithoutCancel(ctx))
			w.log.Info("listening loop stopped")
			return nil
		default:
			w.log.Warn("frame read failed, continuing",
				slog.String("error", err.Error()))
			continue
		}

		if utt := w.segmenter.Push(frame); utt != nil {
			w.process(ctx, utt)
		}
	}
}

// Running reports whether the loop is currently active.
func (w *Listener) Running() bool { return w.running.Load() }

// Status returns a snapshot for diagnostics endpoints.
func (w *Listener) Status() Status {
	return Status{
		Running:     w.running.Load(),
		Utterances:  w.utterances.Load(),
		Transcribed: w.transcribed.Load(),
		Dispatched:  w.dispatched.Load(),
		Dropped:     w.dropped.Load(),
	}
}

// flush pushes any in-progress utterance through the pipeline on shutdown.
func (w *Listener) flush(ctx context.Context) {
	if utt := w.segmenter.Flush(); utt != nil {
		w.process(ctx, utt)
	}
}

func (w *Listener) process(ctx context.Context, utt *segment.Utterance) {
	w.utterances.Add(1)
	start := time.Now()

	res := w.transcriber.Transcribe(ctx, utt.PCM, w.audioCfg.SampleRate)
	if !res.Success {
		w.dropped.Add(1)
		w.log.Warn("utterance dropped, transcription failed",
			slog.String("utterance", utt.ID.String()),
			slog.String("error", res.Err.Error()))
		return
	}
	w.transcribed.Add(1)
	if res.Text == "" {
		return
	}

	out, err := w.handler.HandleTranscription(ctx, res.Text)
	if err != nil {
		w.dropped.Add(1)
		w.log.Warn("transcription not handled",
			slog.String("utterance", utt.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	if out.Dispatched {
		w.dispatched.Add(1)
	}
	w.log.Debug("utterance processed",
		slog.String("utterance", utt.ID.String()),
		slog.String("source", string(res.Source)),
		slog.Bool("dispatched", out.Dispatched),
		slog.Duration("took", time.Since(start)))
}
