package backend

import (
	"encoding/binary"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// encodeWAV wraps raw little-endian PCM16 mono samples in a WAV container
// for the multipart upload.
func encodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	buf := &writeSeekBuffer{}
	enc := wav.NewEncoder(buf, sampleRate, 16, 1, 1)

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
	}

	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		return nil, fmt.Errorf("write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize container: %w", err)
	}
	return buf.data, nil
}

// writeSeekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back
// to patch the header once the sample count is known, which bytes.Buffer
// cannot do.
type writeSeekBuffer struct {
	data []byte
	pos  int
}

func (b *writeSeekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("wav buffer: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("wav buffer: negative seek position %d", next)
	}
	b.pos = int(next)
	return next, nil
}
