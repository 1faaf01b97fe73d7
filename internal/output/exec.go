package output

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-shellwords"

	"github.com/itsdevcoffee/hyprvoice/internal/config"
)

const previewLimit = 80

type execDispatcher struct {
	typeCmd      []string
	clipboardCmd []string
	notifyCmd    []string
	defaultMode  Mode
	log          *slog.Logger
}

// NewExecDispatcher builds a dispatcher that pipes text into the configured
// desktop commands (wtype, wl-copy, xclip and friends).
func NewExecDispatcher(cfg config.OutputConfig, logger *slog.Logger) (Dispatcher, error) {
	parser := shellwords.NewParser()
	parse := func(name, raw string) ([]string, error) {
		if raw == "" {
			return nil, nil
		}
		args, err := parser.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s command: %w", name, err)
		}
		return args, nil
	}

	typeCmd, err := parse("type", cfg.TypeCommand)
	if err != nil {
		return nil, err
	}
	clipCmd, err := parse("clipboard", cfg.ClipboardCommand)
	if err != nil {
		return nil, err
	}
	notifyCmd, err := parse("notify", cfg.NotifyCommand)
	if err != nil {
		return nil, err
	}

	mode, ok, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if !ok {
		mode = ModeType
	}

	return &execDispatcher{
		typeCmd:      typeCmd,
		clipboardCmd: clipCmd,
		notifyCmd:    notifyCmd,
		defaultMode:  mode,
		log:          logger.With(slog.String("component", "output")),
	}, nil
}

func (d *execDispatcher) Deliver(ctx context.Context, text string, mode Mode) error {
	if text == "" {
		d.log.Info("empty transcript, nothing to deliver")
		return nil
	}
	if mode == "" {
		mode = d.defaultMode
	}

	var cmdline []string
	switch mode {
	case ModeType:
		cmdline = d.typeCmd
	case ModeClipboard:
		cmdline = d.clipboardCmd
	default:
		return fmt.Errorf("unknown output mode %q", mode)
	}
	if len(cmdline) == 0 {
		return fmt.Errorf("no command configured for output mode %q", mode)
	}

	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("output command %q: %w (%s)", cmdline[0], err, strings.TrimSpace(string(out)))
	}

	d.notify(ctx, text)
	return nil
}

// notify shows a desktop notification with a short transcript preview.
// Failures are logged, never surfaced: the text has already landed.
func (d *execDispatcher) notify(ctx context.Context, text string) {
	if len(d.notifyCmd) == 0 {
		return
	}
	cmd := exec.CommandContext(ctx, d.notifyCmd[0], append(d.notifyCmd[1:], Preview(text))...)
	if err := cmd.Run(); err != nil {
		d.log.Warn("notify command failed", slog.String("error", err.Error()))
	}
}

// Preview truncates text to a notification-sized excerpt.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLimit]) + "…"
}
