package session

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ambientworks/roomvoice/internal/backend"
	"github.com/ambientworks/roomvoice/internal/observe"
	"github.com/ambientworks/roomvoice/internal/wake"
)

// fakeDispatcher is a scriptable Dispatcher.
type fakeDispatcher struct {
	result *backend.CommandResult
	err    error

	calls []dispatchCall
}

type dispatchCall struct {
	message string
	history []backend.Message
}

func (f *fakeDispatcher) SendCommand(_ context.Context, message string, history []backend.Message) (*backend.CommandResult, error) {
	cp := make([]backend.Message, len(history))
	copy(cp, history)
	f.calls = append(f.calls, dispatchCall{message: message, history: cp})
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &backend.CommandResult{Response: "ok"}, nil
}

// fakeClock advances only when told to.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			t.Errorf("shutdown meter provider: %v", err)
		}
	})
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m
}

func newTestSession(t *testing.T, d Dispatcher, cfg Config) (*Session, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := New(wake.New("aida"), d, cfg, WithMetrics(testMetrics(t)))
	s.now = clock.now
	return s, clock
}

func TestHandleTranscriptionWakeAndCommand(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{result: &backend.CommandResult{Response: "lights are on"}}
	s, _ := newTestSession(t, d, Config{RoomName: "kitchen"})

	out, err := s.HandleTranscription(context.Background(), "aida turn on the lights")
	if err != nil {
		t.Fatalf("HandleTranscription() error = %v", err)
	}
	if !out.Detection.Detected {
		t.Fatal("wake phrase not detected")
	}
	if out.Command != "turn on the lights" {
		t.Errorf("Command = %q, want %q", out.Command, "turn on the lights")
	}
	if !out.Dispatched {
		t.Error("command not dispatched")
	}
	if out.Response.Response != "lights are on" {
		t.Errorf("Response = %q, want %q", out.Response.Response, "lights are on")
	}
	if got := s.Mode(); got != ModeCommandActive {
		t.Errorf("Mode() = %q, want %q", got, ModeCommandActive)
	}
	if h := s.History(); len(h) != 2 || h[0].Role != "user" || h[1].Role != "assistant" {
		t.Errorf("History() = %+v, want user+assistant pair", h)
	}
}

func TestHandleTranscriptionBareWakePhrase(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	s, _ := newTestSession(t, d, Config{})

	out, err := s.HandleTranscription(context.Background(), "aida")
	if err != nil {
		t.Fatalf("HandleTranscription() error = %v", err)
	}
	if !out.Detection.Detected {
		t.Fatal("wake phrase not detected")
	}
	if out.Command != "" {
		t.Errorf("Command = %q, want empty", out.Command)
	}
	if out.Dispatched {
		t.Error("bare wake phrase was dispatched")
	}
	if len(d.calls) != 0 {
		t.Errorf("dispatcher called %d times, want 0", len(d.calls))
	}
	if got := s.Mode(); got != ModeCommandActive {
		t.Errorf("Mode() = %q, want %q", got, ModeCommandActive)
	}
}

func TestHandleTranscriptionIgnoresWithoutWake(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	s, _ := newTestSession(t, d, Config{})

	out, err := s.HandleTranscription(context.Background(), "what a nice day")
	if err != nil {
		t.Fatalf("HandleTranscription() error = %v", err)
	}
	if out.Detection.Detected || out.Dispatched {
		t.Errorf("utterance without wake phrase acted on: %+v", out)
	}
	if got := s.Mode(); got != ModeWakeOnly {
		t.Errorf("Mode() = %q, want %q", got, ModeWakeOnly)
	}
}

func TestHandleTranscriptionFollowUpInCommandMode(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	s, clock := newTestSession(t, d, Config{Timeout: time.Minute})

	if _, err := s.HandleTranscription(context.Background(), "aida turn on the lights"); err != nil {
		t.Fatalf("wake command error = %v", err)
	}
	clock.advance(10 * time.Second)

	out, err := s.HandleTranscription(context.Background(), "and dim them a bit")
	if err != nil {
		t.Fatalf("follow-up error = %v", err)
	}
	if !out.Dispatched {
		t.Fatal("follow-up not dispatched")
	}
	if out.Command != "and dim them a bit" {
		t.Errorf("Command = %q, want full follow-up text", out.Command)
	}
	if out.Detection.Detected {
		t.Error("follow-up should not report a wake detection")
	}
	if len(d.calls) != 2 {
		t.Fatalf("dispatcher called %d times, want 2", len(d.calls))
	}
	// Second dispatch carries the first exchange as history.
	if h := d.calls[1].history; len(h) != 2 || h[0].Content != "turn on the lights" {
		t.Errorf("follow-up history = %+v, want first exchange", h)
	}
}

func TestHandleTranscriptionTimeoutRequiresWakeAgain(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	s, clock := newTestSession(t, d, Config{Timeout: 30 * time.Second})

	if _, err := s.HandleTranscription(context.Background(), "aida turn on the lights"); err != nil {
		t.Fatalf("wake command error = %v", err)
	}
	clock.advance(31 * time.Second)

	out, err := s.HandleTranscription(context.Background(), "turn them off")
	if err != nil {
		t.Fatalf("late follow-up error = %v", err)
	}
	if out.Dispatched {
		t.Error("late follow-up dispatched after timeout")
	}
	if got := s.Mode(); got != ModeWakeOnly {
		t.Errorf("Mode() = %q, want %q", got, ModeWakeOnly)
	}
}

func TestCheckTimeout(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	s, clock := newTestSession(t, d, Config{Timeout: 30 * time.Second})

	if _, err := s.HandleTranscription(context.Background(), "aida"); err != nil {
		t.Fatalf("wake error = %v", err)
	}
	s.CheckTimeout()
	if got := s.Mode(); got != ModeCommandActive {
		t.Fatalf("Mode() = %q before timeout, want %q", got, ModeCommandActive)
	}

	clock.advance(time.Minute)
	s.CheckTimeout()
	if got := s.Mode(); got != ModeWakeOnly {
		t.Errorf("Mode() = %q after timeout, want %q", got, ModeWakeOnly)
	}
}

func TestDispatchFailureKeepsWindowOpen(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{err: errors.New("backend down")}
	s, _ := newTestSession(t, d, Config{})

	out, err := s.HandleTranscription(context.Background(), "aida turn on the lights")
	if err == nil {
		t.Fatal("HandleTranscription() error = nil, want dispatch error")
	}
	if out.Dispatched {
		t.Error("failed command reported as dispatched")
	}
	// The wake detection opens the command window before dispatch, so a
	// backend failure leaves the session command-active with clean history.
	if got := s.Mode(); got != ModeCommandActive {
		t.Errorf("Mode() = %q after failed dispatch, want %q", got, ModeCommandActive)
	}
	if h := s.History(); len(h) != 0 {
		t.Errorf("History() = %+v after failed dispatch, want empty", h)
	}
}

func TestHistoryBounded(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	s, _ := newTestSession(t, d, Config{MaxHistory: 2, Timeout: time.Hour})

	if _, err := s.HandleTranscription(context.Background(), "aida first command"); err != nil {
		t.Fatalf("wake command error = %v", err)
	}
	for _, cmd := range []string{"second command", "third command"} {
		if _, err := s.HandleTranscription(context.Background(), cmd); err != nil {
			t.Fatalf("follow-up %q error = %v", cmd, err)
		}
	}

	h := s.History()
	if len(h) != 4 {
		t.Fatalf("History() len = %d, want 4 (2 exchanges)", len(h))
	}
	if h[0].Content != "second command" {
		t.Errorf("oldest kept message = %q, want %q", h[0].Content, "second command")
	}
}

func TestResponseCallback(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{result: &backend.CommandResult{Response: "done", AudioFile: "http://backend/reply.wav"}}

	var got *backend.CommandResult
	clock := &fakeClock{t: time.Now()}
	s := New(wake.New("aida"), d, Config{},
		WithMetrics(testMetrics(t)),
		WithResponseCallback(func(r *backend.CommandResult) { got = r }))
	s.now = clock.now

	if _, err := s.HandleTranscription(context.Background(), "aida what time is it"); err != nil {
		t.Fatalf("HandleTranscription() error = %v", err)
	}
	if got == nil || got.AudioFile != "http://backend/reply.wav" {
		t.Errorf("callback received %+v, want reply with audio file", got)
	}
}

func TestExtractCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		text    string
		matched string
		want    string
	}{
		{"wake prefix", "aida turn on the lights", "aida", "turn on the lights"},
		{"comma filler", "aida, turn on the lights", "aida", "turn on the lights"},
		{"and then filler", "aida and then play some music", "aida", "play some music"},
		{"then filler", "aida then stop", "aida", "stop"},
		{"mid sentence", "hey aida what time is it", "aida", "what time is it"},
		{"bare wake", "aida", "aida", ""},
		{"case insensitive", "Aida turn off the TV", "aida", "turn off the TV"},
		{"misheard surface form", "apartmint turn off the tv", "apartmint", "turn off the tv"},
		{"token fallback on variation", "aida open the blinds", "ai da", "open the blinds"},
		{"phrase not locatable", "turn off the tv", "robot", "turn off the tv"},
	}
	s, _ := newTestSession(t, &fakeDispatcher{}, Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.extractCommand(tt.text, tt.matched); got != tt.want {
				t.Errorf("extractCommand(%q, %q) = %q, want %q", tt.text, tt.matched, got, tt.want)
			}
		})
	}
}

func TestHandleTranscriptionFuzzyWakeExtractsCommand(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	clock := &fakeClock{t: time.Now()}
	s := New(wake.New("apartment", wake.WithVariations("aida")), d, Config{},
		WithMetrics(testMetrics(t)))
	s.now = clock.now

	out, err := s.HandleTranscription(context.Background(), "apartmint turn off the tv")
	if err != nil {
		t.Fatalf("HandleTranscription() error = %v", err)
	}
	if !out.Detection.Detected || out.Detection.Method != wake.MethodFuzzy {
		t.Fatalf("Detection = %+v, want fuzzy match", out.Detection)
	}
	if out.Command != "turn off the tv" {
		t.Errorf("Command = %q, want %q", out.Command, "turn off the tv")
	}
	if !out.Dispatched {
		t.Error("command not dispatched")
	}
}

func TestHandleTranscriptionWakeRepeatInCommandMode(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	s, _ := newTestSession(t, d, Config{Timeout: time.Minute})

	if _, err := s.HandleTranscription(context.Background(), "aida"); err != nil {
		t.Fatalf("wake error = %v", err)
	}

	out, err := s.HandleTranscription(context.Background(), "aida turn off the tv")
	if err != nil {
		t.Fatalf("repeat wake error = %v", err)
	}
	if !out.Detection.Detected {
		t.Fatal("wake phrase repeat not detected in command mode")
	}
	if out.Command != "turn off the tv" {
		t.Errorf("Command = %q, want wake phrase stripped", out.Command)
	}
	if len(d.calls) != 1 || d.calls[0].message != "turn off the tv" {
		t.Fatalf("dispatcher calls = %+v, want single %q", d.calls, "turn off the tv")
	}

	// A bare repeat only refreshes the window, nothing is dispatched.
	out, err = s.HandleTranscription(context.Background(), "aida")
	if err != nil {
		t.Fatalf("bare repeat error = %v", err)
	}
	if out.Dispatched || len(d.calls) != 1 {
		t.Errorf("bare wake phrase repeat was dispatched: %+v", out)
	}
}

func TestTimeoutKeyedToWakeNotDispatch(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	s, clock := newTestSession(t, d, Config{Timeout: time.Minute})

	if _, err := s.HandleTranscription(context.Background(), "aida"); err != nil {
		t.Fatalf("wake error = %v", err)
	}

	// A follow-up dispatch does not extend the window.
	clock.advance(50 * time.Second)
	if out, err := s.HandleTranscription(context.Background(), "turn on the lights"); err != nil || !out.Dispatched {
		t.Fatalf("follow-up outcome = %+v, err = %v, want dispatched", out, err)
	}
	clock.advance(20 * time.Second)
	if out, err := s.HandleTranscription(context.Background(), "dim them"); err != nil {
		t.Fatalf("late follow-up error = %v", err)
	} else if out.Dispatched {
		t.Error("follow-up dispatched 70s after the last wake, want window expired")
	}
	if got := s.Mode(); got != ModeWakeOnly {
		t.Errorf("Mode() = %q, want %q", got, ModeWakeOnly)
	}

	// A wake-phrase repeat does extend it.
	if _, err := s.HandleTranscription(context.Background(), "aida"); err != nil {
		t.Fatalf("re-wake error = %v", err)
	}
	clock.advance(50 * time.Second)
	if _, err := s.HandleTranscription(context.Background(), "aida"); err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	clock.advance(50 * time.Second)
	if out, err := s.HandleTranscription(context.Background(), "turn on the lights"); err != nil || !out.Dispatched {
		t.Errorf("follow-up after refresh outcome = %+v, err = %v, want dispatched", out, err)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	d := &fakeDispatcher{}
	s, _ := newTestSession(t, d, Config{})

	if _, err := s.HandleTranscription(context.Background(), "aida turn on the lights"); err != nil {
		t.Fatalf("wake command error = %v", err)
	}
	s.Reset()
	if got := s.Mode(); got != ModeWakeOnly {
		t.Errorf("Mode() after Reset = %q, want %q", got, ModeWakeOnly)
	}
	if h := s.History(); len(h) != 0 {
		t.Errorf("History() after Reset = %+v, want empty", h)
	}
}
