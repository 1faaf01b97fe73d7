package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrBufferFrozen is returned by Append once transcription has begun.
	ErrBufferFrozen = errors.New("audio buffer is frozen")
	// ErrBufferFull is returned when the bounded capacity is exhausted.
	ErrBufferFull = errors.New("audio buffer is full")
	// ErrNotFrozen is returned when reading a buffer that may still be written.
	ErrNotFrozen = errors.New("audio buffer is not frozen")
)

// Buffer accumulates mono float32 PCM for one recording session. It has a
// single writer (the capture source) while recording; Freeze makes it
// read-only before any reader touches the samples.
type Buffer struct {
	mu         sync.Mutex
	samples    []float32
	sampleRate int
	max        int
	startedAt  time.Time
	frozen     bool
}

// NewBuffer creates a bounded buffer holding up to maxSeconds of audio.
func NewBuffer(sampleRate, maxSeconds int) *Buffer {
	return &Buffer{
		samples:    make([]float32, 0, sampleRate),
		sampleRate: sampleRate,
		max:        sampleRate * maxSeconds,
		startedAt:  time.Now(),
	}
}

// Append adds captured samples. Fails once frozen or full; the caller
// decides whether to drop or abort.
func (b *Buffer) Append(samples []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return ErrBufferFrozen
	}
	if len(b.samples)+len(samples) > b.max {
		return ErrBufferFull
	}
	b.samples = append(b.samples, samples...)
	return nil
}

// Freeze makes the buffer read-only. Idempotent.
func (b *Buffer) Freeze() {
	b.mu.Lock()
	b.frozen = true
	b.mu.Unlock()
}

func (b *Buffer) Frozen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frozen
}

// Samples exposes the underlying slice. Only legal after Freeze, which is
// what makes the aliasing safe.
func (b *Buffer) Samples() ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.frozen {
		return nil, ErrNotFrozen
	}
	return b.samples, nil
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

func (b *Buffer) StartedAt() time.Time {
	return b.startedAt
}

// Duration reports the audio length captured so far.
func (b *Buffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sampleRate == 0 {
		return 0
	}
	return time.Duration(len(b.samples)) * time.Second / time.Duration(b.sampleRate)
}

// DecodeS16LE converts little-endian 16-bit PCM bytes into normalized
// float32 samples.
func DecodeS16LE(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned: %d bytes", len(pcm))
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(s) / 32767.0
	}
	return samples, nil
}

// EncodeS16LE converts float32 samples to little-endian 16-bit PCM bytes.
func EncodeS16LE(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s*32767.0)))
	}
	return pcm
}
