package transcribe

import (
	"fmt"
	"time"
)

// Result is the final artifact of one transcription. Immutable once built.
type Result struct {
	Text                string
	TokenCount          int
	DraftAcceptanceRate float64
	WallClock           time.Duration
}

// DecodeReason classifies a decode failure.
type DecodeReason int

const (
	ReasonModelFailure DecodeReason = iota
	ReasonAudioTooShort
	ReasonTokenBudget
	ReasonCanceled
)

func (r DecodeReason) String() string {
	switch r {
	case ReasonModelFailure:
		return "model-failure"
	case ReasonAudioTooShort:
		return "audio-too-short"
	case ReasonTokenBudget:
		return "token-budget-exceeded"
	case ReasonCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// DecodeError aborts the current session only; the caller decides whether
// to surface or retry.
type DecodeError struct {
	Reason DecodeReason
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode failed (%s)", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
