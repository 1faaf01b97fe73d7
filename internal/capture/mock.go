package capture

import (
	"sync"
	"time"

	"github.com/itsdevcoffee/hyprvoice/internal/config"
)

// MockSource synthesizes silence frames on the configured cadence. Used in
// tests and for running the daemon without a recorder collaborator.
type MockSource struct {
	cfg config.CaptureConfig

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewMockSource(cfg config.CaptureConfig) *MockSource {
	return &MockSource{cfg: cfg}
}

func (m *MockSource) Start(sink FrameSink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return nil
	}
	frameDur := time.Duration(m.cfg.FrameDurationMS) * time.Millisecond
	if frameDur <= 0 {
		frameDur = 20 * time.Millisecond
	}
	frameLen := m.cfg.SampleRate * m.cfg.FrameDurationMS / 1000
	if frameLen <= 0 {
		frameLen = 320
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	m.stop = stop
	m.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(frameDur)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = sink(make([]float32, frameLen))
			}
		}
	}()
	return nil
}

func (m *MockSource) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}
