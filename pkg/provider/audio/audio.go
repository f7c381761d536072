// Package audio defines the Source interface for microphone capture backends.
//
// A Source produces fixed-size frames of raw little-endian PCM16 mono audio.
// Frame pacing is the backend's responsibility: ReadFrame blocks until one
// full frame of audio has been captured (roughly the frame duration), so the
// listening loop can use it as its natural clock.
//
// A Stream is owned by exactly one goroutine — the listening loop worker —
// for its whole lifetime; implementations need not be safe for concurrent use.
package audio

import (
	"errors"
	"time"
)

// ErrClosed is returned by ReadFrame after the stream has been closed.
var ErrClosed = errors.New("audio: stream closed")

// Config describes the capture format requested from a Source.
type Config struct {
	// SampleRate is the capture rate in Hz (8000, 16000, 32000, or 48000).
	SampleRate int

	// Channels is the number of capture channels. The pipeline expects mono.
	Channels int

	// FrameSize is the number of samples per frame (per channel). For a
	// 30 ms frame at 16 kHz this is 480.
	FrameSize int
}

// FrameBytes returns the byte length of one PCM16 frame for this config.
func (c Config) FrameBytes() int {
	return c.FrameSize * c.Channels * 2
}

// FrameDuration returns the wall-clock duration of one frame.
func (c Config) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// Stream is an open capture stream handle.
type Stream interface {
	// ReadFrame returns the next frame of PCM16 audio. It blocks until a
	// full frame is available or the stream is closed, in which case it
	// returns [ErrClosed]. Transient capture errors are returned as-is;
	// callers may keep reading.
	ReadFrame() ([]byte, error)

	// Close releases the capture device. Calling Close more than once is
	// safe and returns nil. A blocked ReadFrame returns after Close.
	Close() error
}

// Source opens capture streams. Implementations must validate the requested
// Config and return an error for unsupported formats rather than resampling.
type Source interface {
	Open(cfg Config) (Stream, error)
}
