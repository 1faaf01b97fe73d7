// Command hyprvoice drives the dictation daemon: start, stop, or toggle a
// recording, or query its state.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/itsdevcoffee/hyprvoice/internal/bus"
	"github.com/itsdevcoffee/hyprvoice/internal/config"
	"github.com/itsdevcoffee/hyprvoice/internal/protocol"
)

func main() {
	var (
		configPath string
		mode       string
		timeout    time.Duration
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults apply when empty)")
	flag.StringVar(&mode, "mode", "", "Output mode override: type or clipboard")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "Reply timeout")
	flag.Usage = usage
	flag.Parse()

	action := flag.Arg(0)
	switch action {
	case protocol.ActionStart, protocol.ActionStop, protocol.ActionToggle, protocol.ActionStatus:
	case "":
		action = protocol.ActionToggle
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n\n", action)
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	// The CLI talks to a running daemon; it never starts its own bus.
	cfg.Bus.Embedded = false

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := bus.Connect(ctx, cfg.Bus, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach daemon: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	req, err := json.Marshal(protocol.ControlRequest{Action: action, Mode: mode})
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode request: %v\n", err)
		os.Exit(1)
	}

	msg, err := client.Conn().RequestWithContext(ctx, protocol.SubjectControl, req)
	if err != nil {
		if err == nats.ErrNoResponders {
			fmt.Fprintln(os.Stderr, "daemon is not running")
		} else {
			fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		}
		os.Exit(1)
	}

	var reply protocol.ControlReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		fmt.Fprintf(os.Stderr, "decode reply: %v\n", err)
		os.Exit(1)
	}

	if reply.SessionID != "" {
		fmt.Printf("%s %s\n", reply.State, reply.SessionID)
	} else {
		fmt.Println(reply.State)
	}
	if !reply.OK {
		fmt.Fprintln(os.Stderr, reply.Error)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: hyprvoice [flags] [action]

Actions:
  toggle   start recording, or stop and transcribe (default)
  start    same as toggle
  stop     stop recording and transcribe
  status   print daemon state

Flags:
`)
	flag.PrintDefaults()
}
