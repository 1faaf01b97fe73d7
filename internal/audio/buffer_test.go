package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndDuration(t *testing.T) {
	buf := NewBuffer(16000, 10)
	if err := buf.Append(make([]float32, 16000)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := buf.Duration(); got != time.Second {
		t.Fatalf("expected 1s duration, got %v", got)
	}
	if buf.Len() != 16000 {
		t.Fatalf("expected 16000 samples, got %d", buf.Len())
	}
}

func TestFreezeRejectsAppend(t *testing.T) {
	buf := NewBuffer(16000, 10)
	if err := buf.Append([]float32{0, 0.5}); err != nil {
		t.Fatalf("append: %v", err)
	}
	buf.Freeze()
	buf.Freeze() // idempotent
	if err := buf.Append([]float32{0.1}); !errors.Is(err, ErrBufferFrozen) {
		t.Fatalf("expected ErrBufferFrozen, got %v", err)
	}
	samples, err := buf.Samples()
	if err != nil {
		t.Fatalf("samples after freeze: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
}

func TestSamplesBeforeFreeze(t *testing.T) {
	buf := NewBuffer(16000, 10)
	if _, err := buf.Samples(); !errors.Is(err, ErrNotFrozen) {
		t.Fatalf("expected ErrNotFrozen, got %v", err)
	}
}

func TestBoundedCapacity(t *testing.T) {
	buf := NewBuffer(100, 1) // 100 samples max
	if err := buf.Append(make([]float32, 100)); err != nil {
		t.Fatalf("append to capacity: %v", err)
	}
	if err := buf.Append([]float32{0}); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
}

func TestS16LERoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1.0, -1.0}
	pcm := EncodeS16LE(in)
	out, err := DecodeS16LE(pcm)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		diff := out[i] - in[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.001 {
			t.Fatalf("sample %d: expected %f, got %f", i, in[i], out[i])
		}
	}
}

func TestDecodeS16LEMisaligned(t *testing.T) {
	if _, err := DecodeS16LE([]byte{0x01}); err == nil {
		t.Fatal("expected error for odd byte count")
	}
}

func TestWriteWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	if err := WriteWAV(path, make([]float32, 1600), 16000); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat wav: %v", err)
	}
	// 44-byte canonical header plus 2 bytes per sample
	if info.Size() < int64(44+1600*2) {
		t.Fatalf("wav file too small: %d bytes", info.Size())
	}
}
