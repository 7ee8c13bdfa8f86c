package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// wavSink is the writer shared between the real-time callback and the
// recording loop. write never blocks: if the lock is taken the buffer is
// dropped and counted.
type wavSink struct {
	mu      sync.Mutex
	enc     *wav.Encoder
	buf     *goaudio.IntBuffer
	err     error
	dropped atomic.Int64
}

func newWAVSink(ws io.WriteSeeker, sampleRate, channels int) *wavSink {
	return &wavSink{
		enc: wav.NewEncoder(ws, sampleRate, bitDepth, channels, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
	}
}

func (w *wavSink) write(samples []int16) {
	if !w.mu.TryLock() {
		w.dropped.Add(1)
		return
	}
	defer w.mu.Unlock()

	if w.enc == nil || w.err != nil {
		return
	}
	data := w.buf.Data[:0]
	for _, s := range samples {
		data = append(data, int(s))
	}
	w.buf.Data = data
	if err := w.enc.Write(w.buf); err != nil {
		w.err = err
	}
}

// finalize writes the WAV header sizes. Later writes are ignored.
func (w *wavSink) finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	enc := w.enc
	w.enc = nil
	if enc == nil {
		return errors.New("wav writer already finalized")
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	if w.err != nil {
		return fmt.Errorf("write wav: %w", w.err)
	}
	return nil
}

// memBuffer is an in-memory io.WriteSeeker for the WAV encoder, which
// seeks back to patch the header on close.
type memBuffer struct {
	data []byte
	pos  int
}

func (m *memBuffer) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.data) {
		if end > cap(m.data) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.data)
			m.data = grown
		} else {
			m.data = m.data[:end]
		}
	}
	copy(m.data[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.data)) + offset
	default:
		return 0, errors.New("memBuffer: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("memBuffer: negative position")
	}
	m.pos = int(abs)
	return abs, nil
}

func (m *memBuffer) Bytes() []byte { return m.data }
