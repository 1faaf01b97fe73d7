package transcribe

import (
	"context"
)

// Token is a vocabulary id in a model's token space. Target and draft must
// share a vocabulary for speculative decoding to be meaningful.
type Token int32

// Encoding is an opaque handle to a model's encoded utterance, valid until
// the next Encode call on the same model.
type Encoding any

// Model is the token-level decoding contract the speculative decoder drives.
// Implementations must be deterministic under greedy decoding: the same
// encoding and context always yield the same continuation.
type Model interface {
	// Encode runs the audio encoder once per utterance. The prompt tokens
	// bias the vocabulary without appearing in the output.
	Encode(ctx context.Context, samples []float32, sampleRate int, prompt []Token) (Encoding, error)

	// Decode returns the model's greedy continuation at each position after
	// ctxTokens: index 0 conditions on ctxTokens alone, index i on ctxTokens
	// plus speculative[:i]. The result always has len(speculative)+1 entries,
	// produced in one batched forward pass.
	Decode(ctx context.Context, enc Encoding, ctxTokens, speculative []Token) ([]Token, error)

	Tokenize(text string) []Token
	Detokenize(tokens []Token) string

	// EOT is the end-of-transcript token.
	EOT() Token

	Close() error
}

// Capability describes what a loaded pair can do; fixed at load time.
type Capability int

const (
	// TargetOnly decodes without a draft model.
	TargetOnly Capability = iota
	// Speculative runs a draft model ahead of the target.
	Speculative
)

func (c Capability) String() string {
	if c == Speculative {
		return "speculative"
	}
	return "target-only"
}

// Pair is an immutable handle to the loaded models plus decoding
// configuration. It is shared read-only across sessions.
type Pair struct {
	target      Model
	draft       Model
	prompt      string
	maxTokens   int
	draftTokens int
}

// NewPair assembles a pair. draft may be nil; draftTokens is the batch size
// K proposed per round, forced to 0 without a draft.
func NewPair(target, draft Model, prompt string, maxTokens, draftTokens int) *Pair {
	if draft == nil {
		draftTokens = 0
	}
	return &Pair{
		target:      target,
		draft:       draft,
		prompt:      prompt,
		maxTokens:   maxTokens,
		draftTokens: draftTokens,
	}
}

func (p *Pair) Capability() Capability {
	if p.draft != nil && p.draftTokens > 0 {
		return Speculative
	}
	return TargetOnly
}

func (p *Pair) MaxTokens() int { return p.maxTokens }

func (p *Pair) Close() error {
	var err error
	if p.target != nil {
		err = p.target.Close()
	}
	if p.draft != nil {
		if cerr := p.draft.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
