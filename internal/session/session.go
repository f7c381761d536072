// Package session tracks the conversational state of the voice front-end.
//
// A [Session] owns the wake/command mode machine: in wake-only mode every
// transcription must carry the wake phrase before anything is dispatched,
// while in command-active mode follow-up utterances go straight to the
// backend until the command window expires. The wake phrase is matched on
// every utterance, so repeating it inside the window refreshes the timeout
// and dispatches only the trailing command. The Session also maintains the
// bounded conversation history sent along with each command.
//
// All methods are safe for concurrent use.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ambientworks/roomvoice/internal/backend"
	"github.com/ambientworks/roomvoice/internal/observe"
	"github.com/ambientworks/roomvoice/internal/wake"
)

// Mode is the session's listening state.
type Mode string

const (
	// ModeWakeOnly requires the wake phrase before commands are accepted.
	ModeWakeOnly Mode = "wake_only"

	// ModeCommandActive accepts bare follow-up commands until the
	// inactivity timeout.
	ModeCommandActive Mode = "command_active"
)

const (
	defaultTimeout    = 120 * time.Second
	defaultMaxHistory = 10
)

// leadingFillerRe strips connective filler left over after the wake phrase
// is cut out of an utterance ("aida, and then turn off the tv").
var leadingFillerRe = regexp.MustCompile(`(?i)^(,|and then|then)\s*`)

// Dispatcher sends an extracted command to the assistant backend.
// *backend.Client satisfies this.
type Dispatcher interface {
	SendCommand(ctx context.Context, message string, history []backend.Message) (*backend.CommandResult, error)
}

// Outcome describes what a Session did with one transcription.
type Outcome struct {
	// Detection is the wake-phrase detection carried by the utterance.
	// Zero value for follow-up commands inside the command window.
	Detection wake.Detection

	// Command is the extracted command text, empty when the utterance was
	// the bare wake phrase or was ignored.
	Command string

	// Dispatched reports whether Command was sent to the backend.
	Dispatched bool

	// Response is the backend's reply, nil when nothing was dispatched.
	Response *backend.CommandResult
}

// Status is a point-in-time snapshot of a Session for diagnostics.
type Status struct {
	Mode       Mode      `json:"mode"`
	RoomName   string    `json:"room_name"`
	HistoryLen int       `json:"history_length"`
	LastWake   time.Time `json:"last_wake,omitempty"`
}

// Config configures a [Session].
type Config struct {
	// RoomName identifies this client to the backend.
	RoomName string

	// Timeout is the command window measured from the last wake-phrase
	// detection. Defaults to 120s if zero or negative.
	Timeout time.Duration

	// MaxHistory is the number of conversational exchanges to retain; the
	// stored message list is capped at twice this value. Defaults to 10 if
	// zero or negative.
	MaxHistory int
}

// Session is the wake/command state machine. Create one with [New].
type Session struct {
	detector   *wake.Detector
	dispatcher Dispatcher
	roomName   string
	timeout    time.Duration
	maxHistory int
	metrics    *observe.Metrics
	log        *slog.Logger
	onResponse func(*backend.CommandResult)
	now        func() time.Time

	mu       sync.Mutex
	mode     Mode
	lastWake time.Time
	history  []backend.Message
}

// Option configures a Session.
type Option func(*Session)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithResponseCallback registers a callback invoked with every successful
// backend reply, e.g. to play synthesized speech.
func WithResponseCallback(fn func(*backend.CommandResult)) Option {
	return func(s *Session) { s.onResponse = fn }
}

// New creates a Session in wake-only mode.
func New(detector *wake.Detector, dispatcher Dispatcher, cfg Config, opts ...Option) *Session {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	s := &Session{
		detector:   detector,
		dispatcher: dispatcher,
		roomName:   cfg.RoomName,
		timeout:    timeout,
		maxHistory: maxHistory,
		metrics:    observe.DefaultMetrics(),
		log:        slog.Default(),
		now:        time.Now,
		mode:       ModeWakeOnly,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleTranscription runs one transcription through the state machine. The
// command-window timeout is enforced before the text is considered, so a
// late follow-up after the window expired needs the wake phrase again. The
// matcher runs on every utterance: repeating the wake phrase while the
// window is open refreshes it and dispatches only the trailing command. A
// non-nil error means dispatch failed; the conversation history is left
// untouched, but a wake detection still opens the command window.
func (s *Session) HandleTranscription(ctx context.Context, text string) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Outcome{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()

	if det := s.detector.Detect(text); det.Detected {
		return s.handleDetectionLocked(ctx, text, det)
	}
	if s.mode == ModeCommandActive {
		return s.handleFollowUpLocked(ctx, text)
	}
	s.log.Debug("no wake phrase, ignoring utterance",
		slog.String("text", text))
	return Outcome{}, nil
}

// CheckTimeout enforces the command-window timeout without new input. The
// listening loop calls this periodically so the session does not linger in
// command-active mode while the room is silent.
func (s *Session) CheckTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
}

// Mode returns the current listening mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// History returns a copy of the stored conversation history.
func (s *Session) History() []backend.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Status returns a snapshot for diagnostics endpoints.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Mode:       s.mode,
		RoomName:   s.roomName,
		HistoryLen: len(s.history),
		LastWake:   s.lastWake,
	}
}

// Reset returns the session to wake-only mode and clears the history.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeWakeOnly
	s.lastWake = time.Time{}
	s.history = nil
}

func (s *Session) expireLocked() {
	if s.mode != ModeCommandActive {
		return
	}
	if s.now().Sub(s.lastWake) > s.timeout {
		s.log.Info("command window expired, returning to wake-only mode",
			slog.String("room", s.roomName))
		s.mode = ModeWakeOnly
	}
}

// handleDetectionLocked processes an utterance carrying the wake phrase. The
// mode transition and wake timestamp happen before any dispatch, so a failed
// backend call still leaves the command window open.
func (s *Session) handleDetectionLocked(ctx context.Context, text string, det wake.Detection) (Outcome, error) {
	s.metrics.Detections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("method", string(det.Method))))
	s.log.Info("wake phrase detected",
		slog.String("method", string(det.Method)),
		slog.String("matched", det.Matched),
		slog.Float64("confidence", det.Confidence))

	s.mode = ModeCommandActive
	s.lastWake = s.now()

	command := s.extractCommand(text, det.Matched)
	if command == "" {
		// Bare wake phrase: the window is open, wait for a command.
		return Outcome{Detection: det}, nil
	}

	reply, err := s.dispatchLocked(ctx, command)
	if err != nil {
		return Outcome{Detection: det, Command: command}, err
	}
	return Outcome{Detection: det, Command: command, Dispatched: true, Response: reply}, nil
}

// handleFollowUpLocked dispatches an utterance without the wake phrase while
// the command window is open. Follow-ups do not refresh the window; only a
// wake-phrase detection does.
func (s *Session) handleFollowUpLocked(ctx context.Context, text string) (Outcome, error) {
	reply, err := s.dispatchLocked(ctx, text)
	if err != nil {
		return Outcome{Command: text}, err
	}
	return Outcome{Command: text, Dispatched: true, Response: reply}, nil
}

// dispatchLocked sends the command with the current history and, on success,
// appends the exchange. A failed dispatch leaves the history untouched.
func (s *Session) dispatchLocked(ctx context.Context, command string) (*backend.CommandResult, error) {
	start := s.now()
	reply, err := s.dispatcher.SendCommand(ctx, command, s.history)
	took := s.now().Sub(start)
	s.metrics.DispatchDuration.Record(ctx, took.Seconds())
	if err != nil {
		s.metrics.Dispatches.Add(ctx, 1,
			metric.WithAttributes(attribute.String("status", "error")))
		s.log.Error("command dispatch failed",
			slog.String("command", command),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("dispatch command: %w", err)
	}
	s.metrics.Dispatches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", "ok")))
	s.log.Info("command dispatched",
		slog.String("command", command),
		slog.Duration("took", took))

	s.history = append(s.history,
		backend.Message{Role: "user", Content: command},
		backend.Message{Role: "assistant", Content: reply.Response},
	)
	if limit := 2 * s.maxHistory; len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}

	if s.onResponse != nil {
		s.onResponse(reply)
	}
	return reply, nil
}

// extractCommand removes the wake phrase from an utterance. It first locates
// the matched phrase itself as a case-insensitive substring and keeps what
// follows it; the fuzzy and phonetic strategies report the surface token
// from the text, so this covers misheard forms too. When the phrase cannot
// be located (a multiword match whose variation never appears verbatim) it
// scans tokens for the matched phrase or any known variation instead. If
// neither locates the phrase, the full text is returned unchanged.
func (s *Session) extractCommand(text, matched string) string {
	matched = strings.ToLower(strings.TrimSpace(matched))
	if matched != "" {
		if idx := strings.Index(strings.ToLower(text), matched); idx >= 0 {
			rest := strings.TrimSpace(text[idx+len(matched):])
			return strings.TrimSpace(leadingFillerRe.ReplaceAllString(rest, ""))
		}
	}

	tokens := strings.Fields(text)
	for i, tok := range tokens {
		if strings.ToLower(tok) == matched || s.detector.Contains(tok) {
			rest := strings.Join(tokens[i+1:], " ")
			return strings.TrimSpace(leadingFillerRe.ReplaceAllString(rest, ""))
		}
	}
	return text
}
