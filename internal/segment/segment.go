// Package segment turns a stream of fixed-duration audio frames into bounded
// utterances using a frame-level speech classifier.
//
// The segmenter is a two-state machine. It idles until the classifier flags a
// speech frame, then accumulates every subsequent frame — including silence,
// which preserves the trailing context transcription engines rely on — until
// a configured run of consecutive silence frames ends the utterance. A
// finalized utterance is only handed onward when it carries enough speech
// frames to plausibly contain a word; shorter bursts (door slams, coughs) are
// dropped.
//
// The classifier is fail-open: when it errors on a frame, the frame is
// treated as speech and the error is logged. Losing a spurious utterance to
// noise costs nothing downstream, silently truncating real speech does.
//
// A Segmenter is owned by the single listening-loop goroutine and is not safe
// for concurrent use.
package segment

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/ambientworks/roomvoice/pkg/provider/vad"
)

// DefaultSilenceThreshold is the number of consecutive non-speech frames that
// finalizes an utterance when none is configured. At 30 ms frames this is
// about 1.2 s of silence.
const DefaultSilenceThreshold = 40

// DefaultMinSpeechFrames is the minimum number of speech frames an utterance
// needs to be forwarded.
const DefaultMinSpeechFrames = 3

// Config holds the segmentation parameters.
type Config struct {
	// SampleRate is the audio sample rate in Hz, passed through to the
	// classifier.
	SampleRate int

	// FrameBytes is the expected frame length in bytes. Frames of any other
	// length are zero-padded or truncated, never rejected.
	FrameBytes int

	// SilenceThreshold is the consecutive-silence frame count that ends an
	// utterance. Defaults to DefaultSilenceThreshold when zero.
	SilenceThreshold int

	// MinSpeechFrames is the minimum speech frame count for an utterance to
	// be forwarded. Defaults to DefaultMinSpeechFrames when zero.
	MinSpeechFrames int
}

// Utterance is one finalized span of speech audio.
type Utterance struct {
	// ID tags the utterance so log lines across the pipeline can be
	// correlated.
	ID uuid.UUID

	// PCM is the concatenated frame data, speech plus trailing silence.
	PCM []byte

	// Frames is the total number of frames accumulated.
	Frames int

	// SpeechFrames is the number of frames the classifier flagged as speech.
	SpeechFrames int
}

type state int

const (
	stateIdle state = iota
	stateActive
)

// Segmenter accumulates frames into utterances.
type Segmenter struct {
	classifier vad.Classifier
	cfg        Config

	state        state
	buf          []byte
	frames       int
	speechFrames int
	silenceRun   int
}

// New creates a Segmenter that classifies frames with classifier.
func New(classifier vad.Classifier, cfg Config) *Segmenter {
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = DefaultSilenceThreshold
	}
	if cfg.MinSpeechFrames <= 0 {
		cfg.MinSpeechFrames = DefaultMinSpeechFrames
	}
	return &Segmenter{classifier: classifier, cfg: cfg}
}

// Push feeds one frame into the state machine. It returns a non-nil Utterance
// when this frame completed one that clears the minimum-speech gate; in every
// other case it returns nil.
func (s *Segmenter) Push(frame []byte) *Utterance {
	frame = s.normalize(frame)

	speech, err := s.classifier.IsSpeech(frame, s.cfg.SampleRate)
	if err != nil {
		// Fail open: never drop real speech because the classifier choked.
		slog.Warn("segment: classifier error, assuming speech", "error", err)
		speech = true
	}

	switch s.state {
	case stateIdle:
		if !speech {
			return nil
		}
		s.state = stateActive
		s.append(frame, true)
		return nil

	case stateActive:
		if speech {
			s.append(frame, true)
			s.silenceRun = 0
			return nil
		}
		s.append(frame, false)
		s.silenceRun++
		if s.silenceRun < s.cfg.SilenceThreshold {
			return nil
		}
		return s.finalize()
	}
	return nil
}

// Flush finalizes any in-progress utterance immediately, applying the same
// minimum-speech gate as Push. Used on shutdown so trailing speech is not
// lost.
func (s *Segmenter) Flush() *Utterance {
	if s.state != stateActive {
		return nil
	}
	return s.finalize()
}

// Active reports whether an utterance is currently being accumulated.
func (s *Segmenter) Active() bool { return s.state == stateActive }

// Reset discards any accumulated audio and returns to idle.
func (s *Segmenter) Reset() {
	s.state = stateIdle
	s.buf = nil
	s.frames = 0
	s.speechFrames = 0
	s.silenceRun = 0
}

func (s *Segmenter) append(frame []byte, speech bool) {
	s.buf = append(s.buf, frame...)
	s.frames++
	if speech {
		s.speechFrames++
	}
}

func (s *Segmenter) finalize() *Utterance {
	u := &Utterance{
		ID:           uuid.New(),
		PCM:          s.buf,
		Frames:       s.frames,
		SpeechFrames: s.speechFrames,
	}
	dropped := u.SpeechFrames < s.cfg.MinSpeechFrames
	s.Reset()

	if dropped {
		slog.Debug("segment: dropping short burst",
			"utterance_id", u.ID,
			"speech_frames", u.SpeechFrames,
			"min_speech_frames", s.cfg.MinSpeechFrames,
		)
		return nil
	}
	return u
}

// normalize pads or truncates a frame to the configured byte length.
// Classifiers reject odd-sized frames outright; the audio source can produce
// them around device hiccups, and losing alignment is preferable to losing
// the stream.
func (s *Segmenter) normalize(frame []byte) []byte {
	want := s.cfg.FrameBytes
	if want <= 0 || len(frame) == want {
		return frame
	}
	if len(frame) > want {
		return frame[:want]
	}
	padded := make([]byte, want)
	copy(padded, frame)
	return padded
}
