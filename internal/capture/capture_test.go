package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/itsdevcoffee/hyprvoice/internal/config"
)

func TestMockSourceDeliversFrames(t *testing.T) {
	cfg := config.CaptureConfig{Mode: "mock", SampleRate: 16000, Channels: 1, FrameDurationMS: 5}
	src := NewMockSource(cfg)

	var mu sync.Mutex
	var total int
	sink := func(samples []float32) error {
		mu.Lock()
		total += len(samples)
		mu.Unlock()
		return nil
	}

	if err := src.Start(sink); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	src.Stop()

	mu.Lock()
	got := total
	mu.Unlock()
	if got == 0 {
		t.Fatal("expected frames delivered")
	}
	frameLen := cfg.SampleRate * cfg.FrameDurationMS / 1000
	if got%frameLen != 0 {
		t.Fatalf("expected whole frames of %d samples, got %d total", frameLen, got)
	}

	// After Stop no further frames arrive.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	after := total
	mu.Unlock()
	if after != got {
		t.Fatalf("frames delivered after stop: %d -> %d", got, after)
	}
}

func TestMockSourceStopIdempotent(t *testing.T) {
	src := NewMockSource(config.CaptureConfig{SampleRate: 16000, FrameDurationMS: 5})
	src.Stop()
	if err := src.Start(func([]float32) error { return nil }); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.Stop()
	src.Stop()
}

func TestNewRejectsUnknownMode(t *testing.T) {
	if _, err := New(config.CaptureConfig{Mode: "alsa"}, nil, nil); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if _, err := New(config.CaptureConfig{Mode: "bus"}, nil, nil); err == nil {
		t.Fatal("expected error for bus mode without connection")
	}
}
