package audio

import (
	"sync"
	"time"
)

// NullSource is a Source that produces silent frames at the configured frame
// rate. It stands in for a real microphone when audio capture is disabled or
// unavailable, keeping the listening loop alive without ever producing speech.
type NullSource struct{}

// Open returns a stream of zeroed frames paced at the frame duration.
func (NullSource) Open(cfg Config) (Stream, error) {
	return &nullStream{cfg: cfg, done: make(chan struct{})}, nil
}

type nullStream struct {
	cfg       Config
	done      chan struct{}
	closeOnce sync.Once
}

func (s *nullStream) ReadFrame() ([]byte, error) {
	select {
	case <-s.done:
		return nil, ErrClosed
	case <-time.After(s.cfg.FrameDuration()):
		return make([]byte, s.cfg.FrameBytes()), nil
	}
}

func (s *nullStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Compile-time interface assertions.
var (
	_ Source = NullSource{}
	_ Stream = (*nullStream)(nil)
)
