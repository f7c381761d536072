// Package portaudio implements [audio.Source] on top of the PortAudio CGO
// bindings, capturing from the system default input device.
//
// PortAudio is initialised on the first Open and terminated when the last
// stream is closed. Streams capture int16 samples directly, so no sample
// format conversion is needed for the PCM16 pipeline.
package portaudio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	palib "github.com/gordonklaus/portaudio"

	"github.com/ambientworks/roomvoice/pkg/provider/audio"
)

// Compile-time assertion that Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

// initMu serialises PortAudio global init/terminate across streams.
var initMu sync.Mutex

var openStreams int

// Source opens capture streams on the default input device.
type Source struct{}

// New returns a PortAudio-backed Source.
func New() *Source { return &Source{} }

// Open initialises PortAudio (if needed) and opens a default input stream
// with an int16 buffer of exactly one frame.
func (s *Source) Open(cfg audio.Config) (audio.Stream, error) {
	if cfg.Channels != 1 {
		return nil, fmt.Errorf("portaudio: %d channels requested, capture is mono only", cfg.Channels)
	}
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("portaudio: invalid frame size %d", cfg.FrameSize)
	}

	initMu.Lock()
	defer initMu.Unlock()

	if openStreams == 0 {
		if err := palib.Initialize(); err != nil {
			return nil, fmt.Errorf("portaudio: initialize: %w", err)
		}
	}

	buf := make([]int16, cfg.FrameSize*cfg.Channels)
	st, err := palib.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FrameSize, buf)
	if err != nil {
		if openStreams == 0 {
			palib.Terminate()
		}
		return nil, fmt.Errorf("portaudio: open default stream: %w", err)
	}
	if err := st.Start(); err != nil {
		st.Close()
		if openStreams == 0 {
			palib.Terminate()
		}
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}

	openStreams++
	return &stream{pa: st, buf: buf}, nil
}

type stream struct {
	pa  *palib.Stream
	buf []int16

	// closed is read by the listening worker while Close may run on a
	// watcher goroutine, per the audio.Stream contract.
	closed atomic.Bool
}

// ReadFrame blocks until PortAudio has filled one frame buffer, then returns
// the samples as little-endian PCM16 bytes. A concurrent Close aborts the
// blocked read, which then reports audio.ErrClosed.
func (s *stream) ReadFrame() ([]byte, error) {
	if s.closed.Load() {
		return nil, audio.ErrClosed
	}
	if err := s.pa.Read(); err != nil {
		if s.closed.Load() {
			return nil, audio.ErrClosed
		}
		return nil, fmt.Errorf("portaudio: read: %w", err)
	}
	if s.closed.Load() {
		return nil, audio.ErrClosed
	}

	frame := make([]byte, len(s.buf)*2)
	for i, sample := range s.buf {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(sample))
	}
	return frame, nil
}

func (s *stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	initMu.Lock()
	defer initMu.Unlock()

	var errs []error
	// Abort discards pending buffers and unblocks a read waiting in pa.Read;
	// Stop would wait for those buffers and deadlock against it.
	if err := s.pa.Abort(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: abort stream: %w", err))
	}
	if err := s.pa.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
	}

	openStreams--
	if openStreams == 0 {
		if err := palib.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
