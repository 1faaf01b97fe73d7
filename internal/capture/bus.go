package capture

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/itsdevcoffee/hyprvoice/internal/audio"
	"github.com/itsdevcoffee/hyprvoice/internal/bus"
	"github.com/itsdevcoffee/hyprvoice/internal/config"
	"github.com/itsdevcoffee/hyprvoice/internal/protocol"
)

type busSource struct {
	cfg config.CaptureConfig
	bus *bus.Client
	log *slog.Logger

	mu   sync.Mutex
	sub  *nats.Subscription
	sink FrameSink
}

func newBusSource(cfg config.CaptureConfig, busClient *bus.Client, logger *slog.Logger) *busSource {
	return &busSource{
		cfg: cfg,
		bus: busClient,
		log: logger.With(slog.String("component", "capture")),
	}
}

func (s *busSource) Start(sink FrameSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return fmt.Errorf("capture already started")
	}
	s.sink = sink
	subject := protocol.SubjectAudioFramePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
	if err != nil {
		s.sink = nil
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.sub = sub
	return nil
}

func (s *busSource) Stop() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.sink = nil
	s.mu.Unlock()
	if sub != nil {
		_ = sub.Drain()
	}
}

func (s *busSource) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slog.String("error", err.Error()))
		return
	}
	if frame.SampleRate != 0 && frame.SampleRate != s.cfg.SampleRate {
		s.log.Warn("dropping frame with unexpected sample rate",
			slog.Int("got", frame.SampleRate), slog.Int("want", s.cfg.SampleRate))
		return
	}
	samples, err := audio.DecodeS16LE(frame.PCM)
	if err != nil {
		s.log.Warn("dropping malformed frame", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return
	}
	if err := sink(samples); err != nil {
		s.log.Debug("frame rejected by sink", slog.String("error", err.Error()))
	}
}
