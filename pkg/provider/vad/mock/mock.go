// Package mock provides test doubles for the vad package interfaces.
//
// Use Classifier to script per-frame speech decisions and inspect the frames
// that were submitted for classification.
//
// Example:
//
//	cls := &mock.Classifier{Pattern: []bool{true, true, false}}
//	speech, _ := cls.IsSpeech(frame, 16000)
package mock

import (
	"sync"

	"github.com/ambientworks/roomvoice/pkg/provider/vad"
)

// IsSpeechCall records a single invocation of Classifier.IsSpeech.
type IsSpeechCall struct {
	// Frame is a copy of the bytes passed to IsSpeech.
	Frame []byte

	// SampleRate is the rate passed to IsSpeech.
	SampleRate int
}

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Pattern, when non-empty, supplies the IsSpeech results in order.
	// Calls beyond the end of Pattern repeat the last element.
	Pattern []bool

	// Err, if non-nil, is returned by every IsSpeech call.
	Err error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// IsSpeechCalls records every call to IsSpeech in order.
	IsSpeechCalls []IsSpeechCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// IsSpeech records the call and returns the next scripted result.
// With an empty Pattern it returns true.
func (c *Classifier) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := make([]byte, len(frame))
	copy(cp, frame)
	c.IsSpeechCalls = append(c.IsSpeechCalls, IsSpeechCall{Frame: cp, SampleRate: sampleRate})

	if c.Err != nil {
		return false, c.Err
	}
	if len(c.Pattern) == 0 {
		return true, nil
	}
	idx := c.next
	if idx >= len(c.Pattern) {
		idx = len(c.Pattern) - 1
	}
	c.next++
	return c.Pattern[idx], nil
}

// Close records the call and returns CloseErr.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCallCount++
	return c.CloseErr
}

// Reset clears all recorded calls and rewinds the pattern. Thread-safe.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.IsSpeechCalls = nil
	c.CloseCallCount = 0
	c.next = 0
}

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)
