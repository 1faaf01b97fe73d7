// Package capture feeds recorded audio into the active session. The daemon
// does not talk to audio hardware itself: a recorder collaborator publishes
// PCM frames on the bus and the bus source relays them to the session buffer.
package capture

import (
	"fmt"
	"log/slog"

	"github.com/itsdevcoffee/hyprvoice/internal/bus"
	"github.com/itsdevcoffee/hyprvoice/internal/config"
)

// FrameSink receives decoded audio samples. Errors tell the source to drop
// the frame; they do not abort the capture.
type FrameSink func(samples []float32) error

// Source delivers audio frames to a sink while a recording is active.
type Source interface {
	// Start begins delivering frames to sink. It returns once delivery is
	// set up; frames arrive asynchronously until Stop.
	Start(sink FrameSink) error
	// Stop ends delivery. Safe to call when not started.
	Stop()
}

// New builds the configured source.
func New(cfg config.CaptureConfig, busClient *bus.Client, logger *slog.Logger) (Source, error) {
	switch cfg.Mode {
	case "bus":
		if busClient == nil {
			return nil, fmt.Errorf("capture mode bus requires a bus connection")
		}
		return newBusSource(cfg, busClient, logger), nil
	case "mock":
		return NewMockSource(cfg), nil
	default:
		return nil, fmt.Errorf("unknown capture mode %q", cfg.Mode)
	}
}
