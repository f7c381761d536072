package segment_test

import (
	"errors"
	"testing"

	"github.com/ambientworks/roomvoice/internal/segment"
	vadmock "github.com/ambientworks/roomvoice/pkg/provider/vad/mock"
)

func frame(b byte, n int) []byte {
	f := make([]byte, n)
	for i := range f {
		f[i] = b
	}
	return f
}

// pattern builds a classifier decision sequence: n speech frames followed by
// m silence frames.
func pattern(speech, silence int) []bool {
	p := make([]bool, 0, speech+silence)
	for i := 0; i < speech; i++ {
		p = append(p, true)
	}
	for i := 0; i < silence; i++ {
		p = append(p, false)
	}
	return p
}

func TestSegmenter_FinalizesAfterSilenceThreshold(t *testing.T) {
	t.Parallel()

	cls := &vadmock.Classifier{Pattern: pattern(5, 4)}
	seg := segment.New(cls, segment.Config{
		SampleRate:       16000,
		FrameBytes:       960,
		SilenceThreshold: 4,
		MinSpeechFrames:  3,
	})

	var got *segment.Utterance
	for i := 0; i < 9; i++ {
		if u := seg.Push(frame(1, 960)); u != nil {
			if got != nil {
				t.Fatal("second utterance finalized unexpectedly")
			}
			got = u
			if i != 8 {
				t.Errorf("utterance finalized at frame %d, want frame 8", i)
			}
		}
	}

	if got == nil {
		t.Fatal("no utterance finalized")
	}
	if got.Frames != 9 {
		t.Errorf("Frames=%d, want 9 (speech plus trailing silence)", got.Frames)
	}
	if got.SpeechFrames != 5 {
		t.Errorf("SpeechFrames=%d, want 5", got.SpeechFrames)
	}
	if len(got.PCM) != 9*960 {
		t.Errorf("len(PCM)=%d, want %d", len(got.PCM), 9*960)
	}
	if got.ID == [16]byte{} {
		t.Error("utterance ID not assigned")
	}
}

func TestSegmenter_SilenceBeforeSpeechIsIgnored(t *testing.T) {
	t.Parallel()

	cls := &vadmock.Classifier{Pattern: []bool{false, false, true, true, true, false, false}}
	seg := segment.New(cls, segment.Config{
		SampleRate:       16000,
		FrameBytes:       960,
		SilenceThreshold: 2,
		MinSpeechFrames:  3,
	})

	var got *segment.Utterance
	for i := 0; i < 7; i++ {
		if u := seg.Push(frame(1, 960)); u != nil {
			got = u
		}
	}

	if got == nil {
		t.Fatal("no utterance finalized")
	}
	// Leading silence frames must not be part of the utterance.
	if got.Frames != 5 {
		t.Errorf("Frames=%d, want 5", got.Frames)
	}
}

func TestSegmenter_SpeechResetsSilenceCounter(t *testing.T) {
	t.Parallel()

	// speech, silence, silence, speech, then enough silence to finalize.
	cls := &vadmock.Classifier{Pattern: []bool{true, false, false, true, true, true, false, false, false}}
	seg := segment.New(cls, segment.Config{
		SampleRate:       16000,
		FrameBytes:       960,
		SilenceThreshold: 3,
		MinSpeechFrames:  3,
	})

	var got *segment.Utterance
	for i := 0; i < 9; i++ {
		if u := seg.Push(frame(1, 960)); u != nil {
			got = u
			if i != 8 {
				t.Errorf("finalized at frame %d, want 8", i)
			}
		}
	}

	if got == nil {
		t.Fatal("no utterance finalized")
	}
	if got.Frames != 9 {
		t.Errorf("Frames=%d, want 9", got.Frames)
	}
	if got.SpeechFrames != 4 {
		t.Errorf("SpeechFrames=%d, want 4", got.SpeechFrames)
	}
}

func TestSegmenter_ShortBurstDropped(t *testing.T) {
	t.Parallel()

	cls := &vadmock.Classifier{Pattern: pattern(2, 4)}
	seg := segment.New(cls, segment.Config{
		SampleRate:       16000,
		FrameBytes:       960,
		SilenceThreshold: 4,
		MinSpeechFrames:  3,
	})

	for i := 0; i < 6; i++ {
		if u := seg.Push(frame(1, 960)); u != nil {
			t.Fatalf("short burst forwarded: %d speech frames", u.SpeechFrames)
		}
	}
	// The segmenter must be back in idle, ready for the next utterance.
	if seg.Active() {
		t.Error("segmenter still active after dropping short burst")
	}
}

func TestSegmenter_FrameNormalization(t *testing.T) {
	t.Parallel()

	cls := &vadmock.Classifier{Pattern: pattern(3, 2)}
	seg := segment.New(cls, segment.Config{
		SampleRate:       16000,
		FrameBytes:       960,
		SilenceThreshold: 2,
		MinSpeechFrames:  1,
	})

	// Short, long, exact, then silence.
	seg.Push(frame(1, 100))
	seg.Push(frame(1, 2000))
	seg.Push(frame(1, 960))
	seg.Push(frame(1, 960))
	u := seg.Push(frame(1, 960))

	if u == nil {
		t.Fatal("no utterance finalized")
	}
	if len(u.PCM) != 5*960 {
		t.Errorf("len(PCM)=%d, want %d — malformed frames must be padded/truncated", len(u.PCM), 5*960)
	}

	// The classifier must only ever see normalized frames.
	for i, call := range cls.IsSpeechCalls {
		if len(call.Frame) != 960 {
			t.Errorf("classifier call %d saw frame of %d bytes, want 960", i, len(call.Frame))
		}
	}
}

func TestSegmenter_ClassifierErrorFailsOpen(t *testing.T) {
	t.Parallel()

	cls := &vadmock.Classifier{Err: errors.New("model exploded")}
	seg := segment.New(cls, segment.Config{
		SampleRate:       16000,
		FrameBytes:       960,
		SilenceThreshold: 4,
		MinSpeechFrames:  3,
	})

	// Every frame errors, so every frame counts as speech and the utterance
	// never finalizes via silence.
	for i := 0; i < 20; i++ {
		if u := seg.Push(frame(1, 960)); u != nil {
			t.Fatal("utterance finalized despite fail-open speech classification")
		}
	}
	if !seg.Active() {
		t.Error("segmenter idle, want active — classifier errors must count as speech")
	}

	// Flush delivers the accumulated audio.
	u := seg.Flush()
	if u == nil {
		t.Fatal("Flush returned nil")
	}
	if u.SpeechFrames != 20 {
		t.Errorf("SpeechFrames=%d, want 20", u.SpeechFrames)
	}
}

func TestSegmenter_FlushIdleReturnsNil(t *testing.T) {
	t.Parallel()

	seg := segment.New(&vadmock.Classifier{}, segment.Config{SampleRate: 16000, FrameBytes: 960})
	if u := seg.Flush(); u != nil {
		t.Error("Flush on idle segmenter returned an utterance")
	}
}

func TestSegmenter_ConsecutiveUtterances(t *testing.T) {
	t.Parallel()

	p := append(pattern(4, 3), pattern(4, 3)...)
	cls := &vadmock.Classifier{Pattern: p}
	seg := segment.New(cls, segment.Config{
		SampleRate:       16000,
		FrameBytes:       960,
		SilenceThreshold: 3,
		MinSpeechFrames:  3,
	})

	var utterances []*segment.Utterance
	for i := 0; i < 14; i++ {
		if u := seg.Push(frame(1, 960)); u != nil {
			utterances = append(utterances, u)
		}
	}

	if len(utterances) != 2 {
		t.Fatalf("got %d utterances, want 2", len(utterances))
	}
	if utterances[0].ID == utterances[1].ID {
		t.Error("consecutive utterances share an ID")
	}
}
