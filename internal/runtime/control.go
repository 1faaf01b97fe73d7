package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/itsdevcoffee/hyprvoice/internal/bus"
	"github.com/itsdevcoffee/hyprvoice/internal/output"
	"github.com/itsdevcoffee/hyprvoice/internal/protocol"
	"github.com/itsdevcoffee/hyprvoice/internal/session"
)

// controlServer maps bus control requests onto session manager calls. OS
// signal toggles come through the same methods so both paths share one
// transition function.
type controlServer struct {
	manager *session.Manager
	bus     *bus.Client
	log     *slog.Logger
	sub     *nats.Subscription
}

func newControlServer(manager *session.Manager, busClient *bus.Client, logger *slog.Logger) *controlServer {
	return &controlServer{
		manager: manager,
		bus:     busClient,
		log:     logger.With(slog.String("component", "control")),
	}
}

func (c *controlServer) Start() error {
	sub, err := c.bus.Conn().Subscribe(protocol.SubjectControl, c.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe control: %w", err)
	}
	c.sub = sub
	return nil
}

func (c *controlServer) Close() {
	if c.sub != nil {
		_ = c.sub.Drain()
	}
}

func (c *controlServer) handleRequest(msg *nats.Msg) {
	var req protocol.ControlRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.reply(msg, protocol.ControlReply{OK: false, Error: "malformed request"})
		return
	}

	ctx := context.Background()
	mode, _, err := output.ParseMode(req.Mode)
	if err != nil {
		c.reply(msg, protocol.ControlReply{OK: false, Error: err.Error()})
		return
	}

	var snap session.Snapshot
	switch req.Action {
	case protocol.ActionStart, protocol.ActionToggle:
		snap, err = c.manager.RequestStart(ctx, mode)
	case protocol.ActionStop:
		snap, err = c.manager.RequestStop(ctx)
	case protocol.ActionStatus:
		snap, err = c.manager.Status(), nil
	default:
		c.reply(msg, protocol.ControlReply{OK: false, Error: fmt.Sprintf("unknown action %q", req.Action)})
		return
	}

	reply := protocol.ControlReply{
		OK:        err == nil,
		State:     snap.State.String(),
		SessionID: snap.SessionID,
	}
	if err != nil {
		reply.Error = err.Error()
		if errors.Is(err, session.ErrSessionBusy) || errors.Is(err, session.ErrNoActiveSession) {
			// Expected outcomes, not daemon faults.
			c.log.Info("control request rejected",
				slog.String("action", req.Action),
				slog.String("reason", err.Error()))
		} else {
			c.log.Error("control request failed",
				slog.String("action", req.Action),
				slog.String("error", err.Error()))
		}
	}
	c.reply(msg, reply)
}

func (c *controlServer) reply(msg *nats.Msg, reply protocol.ControlReply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		c.log.Error("failed to marshal control reply", slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(data); err != nil {
		c.log.Warn("failed to send control reply", slog.String("error", err.Error()))
	}
}

// Toggle drives the same start/stop transition as a bus toggle request.
func (c *controlServer) Toggle(ctx context.Context, mode output.Mode) {
	snap, err := c.manager.RequestStart(ctx, mode)
	if err != nil {
		c.log.Info("signal toggle rejected", slog.String("reason", err.Error()))
		return
	}
	c.log.Info("signal toggle", slog.String("state", snap.State.String()))
}
