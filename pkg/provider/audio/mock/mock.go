// Package mock provides test doubles for the audio package interfaces.
//
// Use Source to verify the Config passed to Open, and Stream to script a
// fixed sequence of frames followed by [audio.ErrClosed].
package mock

import (
	"sync"

	"github.com/ambientworks/roomvoice/pkg/provider/audio"
)

// OpenCall records a single invocation of Source.Open.
type OpenCall struct {
	// Cfg is the Config passed to Open.
	Cfg audio.Config
}

// Source is a mock implementation of audio.Source.
type Source struct {
	mu sync.Mutex

	// Stream is returned by Open. If nil, Open returns a new empty Stream.
	Stream audio.Stream

	// OpenErr, if non-nil, is returned as the error from Open.
	OpenErr error

	// OpenCalls records every call to Open in order.
	OpenCalls []OpenCall
}

// Open records the call and returns Stream, OpenErr.
func (s *Source) Open(cfg audio.Config) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls = append(s.OpenCalls, OpenCall{Cfg: cfg})
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	if s.Stream != nil {
		return s.Stream, nil
	}
	return &Stream{}, nil
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)

// Stream is a mock implementation of audio.Stream. ReadFrame returns the
// scripted Frames in order; once they are exhausted (or after Close) it
// returns [audio.ErrClosed].
type Stream struct {
	mu sync.Mutex

	// Frames are returned by successive ReadFrame calls.
	Frames [][]byte

	// ReadErrs, when non-nil, pairs with Frames by index: a non-nil entry is
	// returned as the error for that read instead of the frame.
	ReadErrs []error

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next   int
	closed bool
}

// ReadFrame returns the next scripted frame or error.
func (s *Stream) ReadFrame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.next >= len(s.Frames) {
		return nil, audio.ErrClosed
	}
	i := s.next
	s.next++
	if i < len(s.ReadErrs) && s.ReadErrs[i] != nil {
		return nil, s.ReadErrs[i]
	}
	return s.Frames[i], nil
}

// Close records the call.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.CloseCallCount++
	return nil
}

// Ensure Stream implements audio.Stream at compile time.
var _ audio.Stream = (*Stream)(nil)
