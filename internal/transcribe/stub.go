package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const stubEOT Token = -1

// stubModel produces deterministic transcripts without any inference
// backend. Its greedy continuation is a fixed script derived from the
// utterance, which makes it exact under speculative verification.
type stubModel struct {
	log *slog.Logger

	mu    sync.Mutex
	vocab []string
	index map[string]Token
}

type stubEncoding struct {
	script []Token
}

// NewStubModel returns a Model that emits a placeholder transcript scaled
// to the captured duration, and nothing for silence.
func NewStubModel(logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &stubModel{
		log:   logger.With(slog.String("component", "model.stub")),
		index: make(map[string]Token),
	}
}

func (m *stubModel) Encode(_ context.Context, samples []float32, sampleRate int, _ []Token) (Encoding, error) {
	peak := float32(0)
	for _, s := range samples {
		if s > peak {
			peak = s
		} else if -s > peak {
			peak = -s
		}
	}
	if peak < 1e-4 {
		m.log.Debug("stub encode: silence", slog.Int("samples", len(samples)))
		return &stubEncoding{}, nil
	}

	seconds := float64(len(samples)) / float64(sampleRate)
	text := fmt.Sprintf("stub transcript %.1fs", seconds)
	return &stubEncoding{script: m.Tokenize(text)}, nil
}

func (m *stubModel) Decode(_ context.Context, enc Encoding, ctxTokens, speculative []Token) ([]Token, error) {
	se, ok := enc.(*stubEncoding)
	if !ok {
		return nil, fmt.Errorf("stub decode: foreign encoding %T", enc)
	}
	out := make([]Token, len(speculative)+1)
	for i := range out {
		pos := len(ctxTokens) + i
		if pos < len(se.script) {
			out[i] = se.script[pos]
		} else {
			out[i] = stubEOT
		}
	}
	return out, nil
}

func (m *stubModel) Tokenize(text string) []Token {
	words := strings.Fields(text)
	tokens := make([]Token, 0, len(words))
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range words {
		id, ok := m.index[w]
		if !ok {
			id = Token(len(m.vocab))
			m.vocab = append(m.vocab, w)
			m.index[w] = id
		}
		tokens = append(tokens, id)
	}
	return tokens
}

func (m *stubModel) Detokenize(tokens []Token) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	words := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t >= 0 && int(t) < len(m.vocab) {
			words = append(words, m.vocab[t])
		}
	}
	return strings.Join(words, " ")
}

func (m *stubModel) EOT() Token { return stubEOT }

func (m *stubModel) Close() error { return nil }
