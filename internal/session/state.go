// Package session owns the daemon's single piece of mutable shared state:
// the current recording session. All transitions go through the Manager.
package session

import (
	"errors"
	"time"

	"github.com/itsdevcoffee/hyprvoice/internal/audio"
	"github.com/itsdevcoffee/hyprvoice/internal/output"
)

// State of the session machine.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrSessionBusy is returned when a start arrives while a transcription
	// is still running, or another live process holds the session marker.
	ErrSessionBusy = errors.New("session busy")
	// ErrNoActiveSession is returned for a stop with nothing recording.
	ErrNoActiveSession = errors.New("no active session")
)

// Session is one dictation attempt.
type Session struct {
	ID        string
	OwnerPID  int
	StartedAt time.Time
	Deadline  time.Time

	buffer *audio.Buffer
	mode   output.Mode
}
