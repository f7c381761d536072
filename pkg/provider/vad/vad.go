// Package vad defines the Classifier interface for frame-level Voice Activity
// Detection backends.
//
// A classifier answers one question per audio frame: does this frame contain
// speech? The answer drives the segmenter's speech/silence state machine, so
// classifiers must be fast and synchronous — IsSpeech is called once per frame
// from the hot path of the listening loop and must not block.
//
// Frames are raw little-endian PCM16 mono. Supported frame durations are 10,
// 20, or 30 ms at 8000, 16000, 32000, or 48000 Hz, matching the constraints of
// the WebRTC VAD model that backs the default implementation.
//
// Implementations need not be safe for concurrent use; the listening loop owns
// its classifier for the lifetime of the worker.
package vad

// SampleRates lists the sample rates (Hz) a Classifier must accept.
var SampleRates = []int{8000, 16000, 32000, 48000}

// FrameDurationsMs lists the frame durations (ms) a Classifier must accept.
var FrameDurationsMs = []int{10, 20, 30}

// ValidSampleRate reports whether rate is a supported sample rate.
func ValidSampleRate(rate int) bool {
	for _, r := range SampleRates {
		if rate == r {
			return true
		}
	}
	return false
}

// Classifier is the abstraction over any frame-level speech detector.
//
// An aggressiveness setting (0–3) is a construction-time concern of each
// implementation: higher values suppress more non-speech at the cost of
// clipping quiet speech.
type Classifier interface {
	// IsSpeech reports whether the given PCM16 frame contains speech.
	// The frame must be sized for one of the supported durations at
	// sampleRate. Implementations should return an error rather than
	// guessing when the frame cannot be classified; callers decide the
	// failure policy (the segmenter fails open).
	IsSpeech(frame []byte, sampleRate int) (bool, error)

	// Close releases any resources held by the classifier. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// AssumeSpeech is a Classifier that reports every frame as speech. It is the
// null implementation used when no real VAD backend is available: utterances
// are then bounded only by the audio source going quiet at the sample level,
// which degrades segmentation quality but never drops speech.
type AssumeSpeech struct{}

// IsSpeech always returns true.
func (AssumeSpeech) IsSpeech([]byte, int) (bool, error) { return true, nil }

// Close is a no-op.
func (AssumeSpeech) Close() error { return nil }

// Compile-time interface assertion.
var _ Classifier = AssumeSpeech{}
