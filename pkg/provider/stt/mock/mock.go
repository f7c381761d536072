// Package mock provides a test double for the stt.Engine interface.
//
// Script Results (and optionally Errs) to control successive Transcribe
// calls, and inspect TranscribeCalls to verify the audio that was submitted.
package mock

import (
	"context"
	"sync"

	"github.com/ambientworks/roomvoice/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Engine.Transcribe.
type TranscribeCall struct {
	// PCM is a copy of the audio passed to Transcribe.
	PCM []byte

	// SampleRate is the rate passed to Transcribe.
	SampleRate int
}

// Engine is a mock implementation of stt.Engine.
type Engine struct {
	mu sync.Mutex

	// Results supplies the return values for successive Transcribe calls.
	// Calls beyond the end repeat the last element; with an empty slice the
	// zero Result is returned.
	Results []stt.Result

	// Errs pairs with Results by index; a non-nil entry is returned as the
	// error for that call.
	Errs []error

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// Transcribe records the call and returns the next scripted result.
func (e *Engine) Transcribe(_ context.Context, pcm []byte, sampleRate int) (stt.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	e.TranscribeCalls = append(e.TranscribeCalls, TranscribeCall{PCM: cp, SampleRate: sampleRate})

	idx := e.next
	e.next++
	if idx < len(e.Errs) && e.Errs[idx] != nil {
		return stt.Result{}, e.Errs[idx]
	}
	if len(e.Results) == 0 {
		return stt.Result{}, nil
	}
	if idx >= len(e.Results) {
		idx = len(e.Results) - 1
	}
	return e.Results[idx], nil
}

// Close records the call.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return nil
}

// Reset clears recorded calls and rewinds the script. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.TranscribeCalls = nil
	e.CloseCallCount = 0
	e.next = 0
}

// Ensure Engine implements stt.Engine at compile time.
var _ stt.Engine = (*Engine)(nil)
