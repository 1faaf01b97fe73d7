// Package output delivers finished transcripts to the desktop: typed into
// the focused window or placed on the clipboard.
package output

import (
	"context"
	"fmt"
)

// Mode selects how a transcript reaches the user.
type Mode string

const (
	ModeType      Mode = "type"
	ModeClipboard Mode = "clipboard"
)

// ParseMode validates a mode string. Empty selects the configured default,
// signalled by returning ok=false with no error.
func ParseMode(raw string) (Mode, bool, error) {
	switch raw {
	case "":
		return "", false, nil
	case string(ModeType):
		return ModeType, true, nil
	case string(ModeClipboard):
		return ModeClipboard, true, nil
	default:
		return "", false, fmt.Errorf("unknown output mode %q", raw)
	}
}

// Dispatcher sends a transcript to its destination. Implementations must
// treat empty text as a no-op success.
type Dispatcher interface {
	Deliver(ctx context.Context, text string, mode Mode) error
}
