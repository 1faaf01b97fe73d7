package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/itsdevcoffee/hyprvoice/internal/audio"
)

// Decoder turns a frozen audio buffer into text using the loaded pair.
// With a draft model it runs speculative decoding: the draft proposes up to
// K tokens per round, the target verifies them in one batched pass and
// supplies its own token at the first mismatch. The accepted sequence is
// therefore always exactly what target-only greedy decoding would produce;
// only the number of target passes changes.
type Decoder struct {
	pair *Pair
	log  *slog.Logger
}

// decodeState is the transient state of one in-flight decode.
type decodeState struct {
	accepted []Token
	proposal []Token

	draftProposed int
	draftAccepted int
	rounds        int
	done          bool
}

func NewDecoder(pair *Pair, logger *slog.Logger) *Decoder {
	return &Decoder{
		pair: pair,
		log:  logger.With(slog.String("component", "decoder")),
	}
}

// Transcribe decodes the buffer. An empty buffer yields an empty result;
// audio shorter than one 20 ms frame is rejected.
func (d *Decoder) Transcribe(ctx context.Context, buf *audio.Buffer) (Result, error) {
	start := time.Now()

	samples, err := buf.Samples()
	if err != nil {
		return Result{}, fmt.Errorf("read buffer: %w", err)
	}
	if len(samples) == 0 {
		return Result{WallClock: time.Since(start)}, nil
	}
	minSamples := buf.SampleRate() / 50 // one 20 ms frame
	if len(samples) < minSamples {
		return Result{}, &DecodeError{
			Reason: ReasonAudioTooShort,
			Err:    fmt.Errorf("%d samples, need at least %d", len(samples), minSamples),
		}
	}

	target := d.pair.target
	var prompt []Token
	if d.pair.prompt != "" {
		prompt = target.Tokenize(d.pair.prompt)
	}

	enc, err := target.Encode(ctx, samples, buf.SampleRate(), prompt)
	if err != nil {
		return Result{}, &DecodeError{Reason: ReasonModelFailure, Err: fmt.Errorf("encode target: %w", err)}
	}

	var draftEnc Encoding
	if d.pair.Capability() == Speculative {
		var draftPrompt []Token
		if d.pair.prompt != "" {
			draftPrompt = d.pair.draft.Tokenize(d.pair.prompt)
		}
		draftEnc, err = d.pair.draft.Encode(ctx, samples, buf.SampleRate(), draftPrompt)
		if err != nil {
			return Result{}, &DecodeError{Reason: ReasonModelFailure, Err: fmt.Errorf("encode draft: %w", err)}
		}
	}

	st := &decodeState{accepted: make([]Token, 0, d.pair.maxTokens)}

	for !st.done && len(st.accepted) < d.pair.maxTokens {
		// Cooperative cancellation between rounds; a runaway decode must
		// not outlive the session's decode deadline.
		if err := ctx.Err(); err != nil {
			return Result{}, &DecodeError{Reason: ReasonCanceled, Err: err}
		}
		st.rounds++

		if err := d.runRound(ctx, enc, draftEnc, st); err != nil {
			return Result{}, err
		}
	}

	if !st.done {
		return Result{}, &DecodeError{
			Reason: ReasonTokenBudget,
			Err:    fmt.Errorf("no end of transcript within %d tokens", d.pair.maxTokens),
		}
	}

	rate := 0.0
	if st.draftProposed > 0 {
		rate = float64(st.draftAccepted) / float64(st.draftProposed)
	}
	result := Result{
		Text:                strings.TrimSpace(target.Detokenize(st.accepted)),
		TokenCount:          len(st.accepted),
		DraftAcceptanceRate: rate,
		WallClock:           time.Since(start),
	}

	d.log.Debug("decode complete",
		slog.Int("tokens", result.TokenCount),
		slog.Int("rounds", st.rounds),
		slog.Float64("draft_acceptance_rate", result.DraftAcceptanceRate),
		slog.Duration("wall_clock", result.WallClock))

	return result, nil
}

// runRound executes one propose/verify round and appends at least one token
// to the accepted sequence unless end of transcript is reached.
func (d *Decoder) runRound(ctx context.Context, enc, draftEnc Encoding, st *decodeState) error {
	k := d.pair.draftTokens
	if remaining := d.pair.maxTokens - len(st.accepted); k > remaining {
		k = remaining
	}

	st.proposal = st.proposal[:0]
	if d.pair.Capability() == Speculative && k > 0 {
		draft := d.pair.draft
		draftCtx := append([]Token(nil), st.accepted...)
		for len(st.proposal) < k {
			out, err := draft.Decode(ctx, draftEnc, draftCtx, nil)
			if err != nil {
				return &DecodeError{Reason: ReasonModelFailure, Err: fmt.Errorf("draft decode: %w", err)}
			}
			next := out[0]
			st.proposal = append(st.proposal, next)
			draftCtx = append(draftCtx, next)
			if next == draft.EOT() {
				break
			}
		}
		st.draftProposed += len(st.proposal)
	}

	// One batched target pass scores every proposed position plus the
	// position after the full proposal.
	verified, err := d.pair.target.Decode(ctx, enc, st.accepted, st.proposal)
	if err != nil {
		return &DecodeError{Reason: ReasonModelFailure, Err: fmt.Errorf("target decode: %w", err)}
	}
	if len(verified) != len(st.proposal)+1 {
		return &DecodeError{
			Reason: ReasonModelFailure,
			Err:    fmt.Errorf("target returned %d positions for %d proposed", len(verified), len(st.proposal)),
		}
	}

	eot := d.pair.target.EOT()
	for i, want := range verified[:len(st.proposal)] {
		// Exact top-1 match: greedy decoding makes acceptance lossless.
		if st.proposal[i] != want {
			if want == eot {
				st.done = true
				return nil
			}
			st.accepted = append(st.accepted, want)
			return nil
		}
		if want == eot {
			st.draftAccepted++
			st.done = true
			return nil
		}
		st.draftAccepted++
		st.accepted = append(st.accepted, want)
		if len(st.accepted) == d.pair.maxTokens {
			return nil
		}
	}

	// Whole proposal accepted; the verification pass already paid for the
	// next target token, keep it.
	bonus := verified[len(st.proposal)]
	if bonus == eot {
		st.done = true
		return nil
	}
	st.accepted = append(st.accepted, bonus)
	return nil
}
