// Package webrtc implements [vad.Classifier] using the WebRTC voice activity
// detector via the go-webrtcvad CGO bindings.
//
// The WebRTC VAD is a lightweight GMM-based model that classifies 10/20/30 ms
// PCM16 frames at 8, 16, 32, or 48 kHz. Its aggressiveness mode (0–3) trades
// recall for false-positive suppression: mode 0 passes almost everything
// through as speech, mode 3 only clear speech.
package webrtc

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/ambientworks/roomvoice/pkg/provider/vad"
)

// Compile-time assertion that Classifier satisfies vad.Classifier.
var _ vad.Classifier = (*Classifier)(nil)

// Classifier wraps a WebRTC VAD instance. It is not safe for concurrent use;
// the underlying detector keeps internal state per call.
type Classifier struct {
	vad    *webrtcvad.VAD
	mode   int
	closed bool
}

// New creates a Classifier with the given aggressiveness mode. Modes outside
// [0, 3] are clamped, matching the underlying detector's valid range.
func New(aggressiveness int) (*Classifier, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc: create vad: %w", err)
	}

	mode := aggressiveness
	if mode < 0 {
		mode = 0
	}
	if mode > 3 {
		mode = 3
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("webrtc: set mode %d: %w", mode, err)
	}

	return &Classifier{vad: v, mode: mode}, nil
}

// Mode returns the effective aggressiveness mode after clamping.
func (c *Classifier) Mode() int { return c.mode }

// IsSpeech classifies a single PCM16 frame. The frame length must correspond
// to 10, 20, or 30 ms at sampleRate; anything else is rejected by the
// underlying detector.
func (c *Classifier) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if c.closed {
		return false, fmt.Errorf("webrtc: classifier is closed")
	}
	if !vad.ValidSampleRate(sampleRate) {
		return false, fmt.Errorf("webrtc: unsupported sample rate %d, must be one of %v", sampleRate, vad.SampleRates)
	}
	if !c.vad.ValidRateAndFrameLength(sampleRate, len(frame)/2) {
		return false, fmt.Errorf("webrtc: invalid frame length %d for rate %d", len(frame), sampleRate)
	}

	active, err := c.vad.Process(sampleRate, frame)
	if err != nil {
		return false, fmt.Errorf("webrtc: process frame: %w", err)
	}
	return active, nil
}

// Close marks the classifier as closed. The underlying detector is freed by
// the Go finalizer of the bindings; Close only prevents further use.
func (c *Classifier) Close() error {
	c.closed = true
	return nil
}
