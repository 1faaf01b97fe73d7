package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/itsdevcoffee/hyprvoice/internal/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptModel follows a fixed token script under greedy decoding, which is
// exactly the determinism the verifier relies on.
type scriptModel struct {
	script    []Token
	decodes   int
	decodeErr error
}

type scriptEncoding struct{}

func (m *scriptModel) Encode(_ context.Context, _ []float32, _ int, _ []Token) (Encoding, error) {
	return scriptEncoding{}, nil
}

func (m *scriptModel) Decode(_ context.Context, _ Encoding, ctxTokens, speculative []Token) ([]Token, error) {
	if m.decodeErr != nil {
		return nil, m.decodeErr
	}
	m.decodes++
	out := make([]Token, len(speculative)+1)
	for i := range out {
		pos := len(ctxTokens) + i
		if pos < len(m.script) {
			out[i] = m.script[pos]
		} else {
			out[i] = stubEOT
		}
	}
	return out, nil
}

func (m *scriptModel) Tokenize(string) []Token { return nil }

func (m *scriptModel) Detokenize(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = fmt.Sprint(t)
	}
	return strings.Join(parts, " ")
}

func (m *scriptModel) EOT() Token   { return stubEOT }
func (m *scriptModel) Close() error { return nil }

func speechBuffer(t *testing.T, seconds float64) *audio.Buffer {
	t.Helper()
	buf := audio.NewBuffer(16000, 60)
	n := int(seconds * 16000)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.25
	}
	if err := buf.Append(samples); err != nil {
		t.Fatalf("append: %v", err)
	}
	buf.Freeze()
	return buf
}

func tokens(ids ...int) []Token {
	out := make([]Token, len(ids))
	for i, id := range ids {
		out[i] = Token(id)
	}
	return out
}

func TestTargetOnlyDecoding(t *testing.T) {
	target := &scriptModel{script: tokens(10, 11, 12, 13, 14)}
	dec := NewDecoder(NewPair(target, nil, "", 64, 0), testLogger())

	result, err := dec.Transcribe(context.Background(), speechBuffer(t, 1))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.Text != "10 11 12 13 14" {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if result.TokenCount != 5 {
		t.Fatalf("expected 5 tokens, got %d", result.TokenCount)
	}
	if result.DraftAcceptanceRate != 0 {
		t.Fatalf("expected zero acceptance rate without draft, got %f", result.DraftAcceptanceRate)
	}
}

func TestSpeculativeMatchesTargetOnly(t *testing.T) {
	script := tokens(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)

	baseline := &scriptModel{script: script}
	baseDec := NewDecoder(NewPair(baseline, nil, "", 64, 0), testLogger())
	baseResult, err := baseDec.Transcribe(context.Background(), speechBuffer(t, 1))
	if err != nil {
		t.Fatalf("baseline transcribe: %v", err)
	}

	cases := []struct {
		name  string
		k     int
		draft []Token
	}{
		{"perfect draft k=1", 1, script},
		{"perfect draft k=3", 3, script},
		{"perfect draft k=8", 8, script},
		{"divergent tail k=4", 4, tokens(1, 2, 3, 99, 98, 97, 96, 95, 94, 93, 92, 91)},
		{"divergent head k=4", 4, tokens(50, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)},
		{"hopeless draft k=8", 8, tokens(70, 71, 72, 73, 74, 75, 76, 77, 78, 79, 80, 81)},
		{"short draft script k=8", 8, tokens(1, 2, 3)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := &scriptModel{script: script}
			draft := &scriptModel{script: tc.draft}
			dec := NewDecoder(NewPair(target, draft, "", 64, tc.k), testLogger())

			result, err := dec.Transcribe(context.Background(), speechBuffer(t, 1))
			if err != nil {
				t.Fatalf("transcribe: %v", err)
			}
			if result.Text != baseResult.Text {
				t.Fatalf("speculative output %q differs from target-only %q", result.Text, baseResult.Text)
			}
			if result.TokenCount != baseResult.TokenCount {
				t.Fatalf("token count %d differs from target-only %d", result.TokenCount, baseResult.TokenCount)
			}
		})
	}
}

func TestSpeculativeSavesTargetPasses(t *testing.T) {
	script := tokens(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)

	baseline := &scriptModel{script: script}
	baseDec := NewDecoder(NewPair(baseline, nil, "", 64, 0), testLogger())
	if _, err := baseDec.Transcribe(context.Background(), speechBuffer(t, 1)); err != nil {
		t.Fatalf("baseline transcribe: %v", err)
	}

	target := &scriptModel{script: script}
	draft := &scriptModel{script: script}
	dec := NewDecoder(NewPair(target, draft, "", 64, 4), testLogger())
	if _, err := dec.Transcribe(context.Background(), speechBuffer(t, 1)); err != nil {
		t.Fatalf("speculative transcribe: %v", err)
	}

	if target.decodes >= baseline.decodes {
		t.Fatalf("expected fewer target passes with a perfect draft: %d vs %d", target.decodes, baseline.decodes)
	}
}

func TestAcceptanceRateAccounting(t *testing.T) {
	script := tokens(1, 2, 3, 4)

	perfect := &scriptModel{script: script}
	dec := NewDecoder(NewPair(&scriptModel{script: script}, perfect, "", 64, 8), testLogger())
	result, err := dec.Transcribe(context.Background(), speechBuffer(t, 1))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.DraftAcceptanceRate != 1.0 {
		t.Fatalf("expected acceptance rate 1.0 for perfect draft, got %f", result.DraftAcceptanceRate)
	}

	hopeless := &scriptModel{script: tokens(90, 91, 92, 93, 94, 95, 96, 97)}
	dec = NewDecoder(NewPair(&scriptModel{script: script}, hopeless, "", 64, 2), testLogger())
	result, err = dec.Transcribe(context.Background(), speechBuffer(t, 1))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.DraftAcceptanceRate != 0 {
		t.Fatalf("expected acceptance rate 0 for hopeless draft, got %f", result.DraftAcceptanceRate)
	}
}

func TestTokenBudgetExceeded(t *testing.T) {
	long := make([]Token, 100)
	for i := range long {
		long[i] = Token(i)
	}
	dec := NewDecoder(NewPair(&scriptModel{script: long}, nil, "", 10, 0), testLogger())

	_, err := dec.Transcribe(context.Background(), speechBuffer(t, 1))
	var derr *DecodeError
	if !errors.As(err, &derr) || derr.Reason != ReasonTokenBudget {
		t.Fatalf("expected token budget error, got %v", err)
	}
}

func TestCancellationBetweenRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dec := NewDecoder(NewPair(&scriptModel{script: tokens(1, 2, 3)}, nil, "", 64, 0), testLogger())
	_, err := dec.Transcribe(ctx, speechBuffer(t, 1))
	var derr *DecodeError
	if !errors.As(err, &derr) || derr.Reason != ReasonCanceled {
		t.Fatalf("expected canceled error, got %v", err)
	}
}

func TestEmptyBuffer(t *testing.T) {
	buf := audio.NewBuffer(16000, 10)
	buf.Freeze()

	dec := NewDecoder(NewPair(&scriptModel{script: tokens(1)}, nil, "", 64, 0), testLogger())
	result, err := dec.Transcribe(context.Background(), buf)
	if err != nil {
		t.Fatalf("expected empty result without error, got %v", err)
	}
	if result.Text != "" || result.TokenCount != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestAudioTooShort(t *testing.T) {
	buf := audio.NewBuffer(16000, 10)
	if err := buf.Append(make([]float32, 100)); err != nil { // < one 20 ms frame
		t.Fatalf("append: %v", err)
	}
	buf.Freeze()

	dec := NewDecoder(NewPair(&scriptModel{script: tokens(1)}, nil, "", 64, 0), testLogger())
	_, err := dec.Transcribe(context.Background(), buf)
	var derr *DecodeError
	if !errors.As(err, &derr) || derr.Reason != ReasonAudioTooShort {
		t.Fatalf("expected audio-too-short error, got %v", err)
	}
}

func TestModelFailureWrapped(t *testing.T) {
	broken := &scriptModel{script: tokens(1, 2), decodeErr: errors.New("inference crashed")}
	dec := NewDecoder(NewPair(broken, nil, "", 64, 0), testLogger())

	_, err := dec.Transcribe(context.Background(), speechBuffer(t, 1))
	var derr *DecodeError
	if !errors.As(err, &derr) || derr.Reason != ReasonModelFailure {
		t.Fatalf("expected model failure, got %v", err)
	}
}

func TestStubModelSilence(t *testing.T) {
	buf := audio.NewBuffer(16000, 10)
	if err := buf.Append(make([]float32, 16000)); err != nil {
		t.Fatalf("append: %v", err)
	}
	buf.Freeze()

	target := NewStubModel(testLogger())
	dec := NewDecoder(NewPair(target, nil, "", 64, 0), testLogger())
	result, err := dec.Transcribe(context.Background(), buf)
	if err != nil {
		t.Fatalf("transcribe silence: %v", err)
	}
	if result.Text != "" {
		t.Fatalf("expected empty transcript for silence, got %q", result.Text)
	}
}

func TestStubModelSpeech(t *testing.T) {
	target := NewStubModel(testLogger())
	draft := NewStubModel(testLogger())
	dec := NewDecoder(NewPair(target, draft, "", 64, 4), testLogger())

	result, err := dec.Transcribe(context.Background(), speechBuffer(t, 1.5))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.Text == "" {
		t.Fatal("expected non-empty transcript for speech")
	}
	if result.DraftAcceptanceRate != 1.0 {
		t.Fatalf("identical stub models should agree, rate %f", result.DraftAcceptanceRate)
	}
}
