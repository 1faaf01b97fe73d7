package protocol

import "time"

// AudioFrame carries PCM audio pushed by the capture collaborator.
type AudioFrame struct {
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"` // s16le
	Final      bool   `json:"final"`
}

// Control actions understood by the daemon. An OS-delivered stop signal and
// a CLI stop request both end up as ActionStop on the same code path.
const (
	ActionStart  = "start"
	ActionStop   = "stop"
	ActionToggle = "toggle"
	ActionStatus = "status"
)

// ControlRequest is sent by the CLI (or any bus client) to drive a session.
type ControlRequest struct {
	Action string `json:"action"`
	Mode   string `json:"mode,omitempty"` // output mode override: type|clipboard
}

// ControlReply reports the outcome of a control request.
type ControlReply struct {
	OK        bool   `json:"ok"`
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Transcript is published once per completed session.
type Transcript struct {
	SessionID       string    `json:"session_id"`
	Text            string    `json:"text"`
	TokenCount      int       `json:"token_count"`
	AcceptanceRate  float64   `json:"draft_acceptance_rate"`
	WallClockMillis int64     `json:"wall_clock_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

const (
	SubjectControl          = "hyprvoice.control"
	SubjectAudioFramePrefix = "hyprvoice.audio.frame"
	SubjectTranscriptFinal  = "hyprvoice.transcript.final"
)
