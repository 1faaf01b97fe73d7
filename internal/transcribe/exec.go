package transcribe

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/itsdevcoffee/hyprvoice/internal/audio"
)

// execModel drives a long-lived helper process (typically a thin wrapper
// around whisper.cpp) over a JSON-lines protocol on stdin/stdout. The
// process loads the model once; each utterance is handed over as a WAV
// temp file at encode time.
//
// Helper protocol, one JSON object per line:
//
//	-> {"op":"encode","audio":"/tmp/x.wav","prompt":[...]}   <- {"ok":true}
//	-> {"op":"decode","context":[...],"speculative":[...]}   <- {"tokens":[...]}
//	-> {"op":"tokenize","text":"..."}                        <- {"tokens":[...]}
//	-> {"op":"detokenize","tokens":[...]}                    <- {"text":"..."}
//
// On start the helper announces itself with {"ok":true,"eot":<id>}.
type execModel struct {
	log *slog.Logger

	mu      sync.Mutex
	proc    *exec.Cmd
	stdin   io.WriteCloser
	enc     *json.Encoder
	scanner *bufio.Scanner
	eot     Token
	wavDir  string
}

type helperRequest struct {
	Op          string  `json:"op"`
	Audio       string  `json:"audio,omitempty"`
	Prompt      []Token `json:"prompt,omitempty"`
	Context     []Token `json:"context,omitempty"`
	Speculative []Token `json:"speculative,omitempty"`
	Text        string  `json:"text,omitempty"`
	Tokens      []Token `json:"tokens,omitempty"`
}

type helperReply struct {
	OK     bool    `json:"ok"`
	EOT    Token   `json:"eot"`
	Tokens []Token `json:"tokens"`
	Text   string  `json:"text"`
	Error  string  `json:"error"`
}

// NewExecModel launches the helper for one model file and waits for its
// ready line. A failure here is the daemon's ModelLoadError.
func NewExecModel(command, modelPath, language string, logger *slog.Logger) (Model, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse model command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("model command is empty")
	}
	args = append(args, "--model", modelPath)
	if language != "" {
		args = append(args, "--language", language)
	}

	proc := exec.Command(args[0], args[1:]...)
	stdin, err := proc.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("model helper stdin: %w", err)
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("model helper stdout: %w", err)
	}
	proc.Stderr = os.Stderr

	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("start model helper: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	m := &execModel{
		log:     logger.With(slog.String("component", "model.exec"), slog.String("model", filepath.Base(modelPath))),
		proc:    proc,
		stdin:   stdin,
		enc:     json.NewEncoder(stdin),
		scanner: scanner,
		wavDir:  os.TempDir(),
	}

	ready, err := m.readReply()
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("model helper handshake: %w", err)
	}
	m.eot = ready.EOT
	m.log.Info("model helper ready", slog.Int("eot", int(ready.EOT)))
	return m, nil
}

func (m *execModel) roundTrip(req helperRequest) (helperReply, error) {
	if err := m.enc.Encode(req); err != nil {
		return helperReply{}, fmt.Errorf("write %s request: %w", req.Op, err)
	}
	reply, err := m.readReply()
	if err != nil {
		return helperReply{}, fmt.Errorf("%s: %w", req.Op, err)
	}
	return reply, nil
}

func (m *execModel) readReply() (helperReply, error) {
	if !m.scanner.Scan() {
		if err := m.scanner.Err(); err != nil {
			return helperReply{}, err
		}
		return helperReply{}, fmt.Errorf("model helper closed its stdout")
	}
	var reply helperReply
	if err := json.Unmarshal(m.scanner.Bytes(), &reply); err != nil {
		return helperReply{}, fmt.Errorf("decode helper reply: %w", err)
	}
	if reply.Error != "" {
		return helperReply{}, fmt.Errorf("helper error: %s", reply.Error)
	}
	return reply, nil
}

// execEncoding marks that the helper currently holds this utterance's
// encoder state; the helper only serves one utterance at a time.
type execEncoding struct{}

func (m *execModel) Encode(ctx context.Context, samples []float32, sampleRate int, prompt []Token) (Encoding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.CreateTemp(m.wavDir, "hyprvoice_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp wav: %w", err)
	}
	path := file.Name()
	file.Close()
	if err := audio.WriteWAV(path, samples, sampleRate); err != nil {
		os.Remove(path)
		return nil, err
	}
	defer os.Remove(path)

	if _, err := m.roundTrip(helperRequest{Op: "encode", Audio: path, Prompt: prompt}); err != nil {
		return nil, err
	}
	return &execEncoding{}, nil
}

func (m *execModel) Decode(ctx context.Context, enc Encoding, ctxTokens, speculative []Token) ([]Token, error) {
	if _, ok := enc.(*execEncoding); !ok {
		return nil, fmt.Errorf("exec decode: foreign encoding %T", enc)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reply, err := m.roundTrip(helperRequest{Op: "decode", Context: ctxTokens, Speculative: speculative})
	if err != nil {
		return nil, err
	}
	if len(reply.Tokens) != len(speculative)+1 {
		return nil, fmt.Errorf("helper returned %d positions for %d proposed", len(reply.Tokens), len(speculative))
	}
	return reply.Tokens, nil
}

func (m *execModel) Tokenize(text string) []Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	reply, err := m.roundTrip(helperRequest{Op: "tokenize", Text: text})
	if err != nil {
		m.log.Warn("tokenize failed, dropping prompt bias", slog.String("error", err.Error()))
		return nil
	}
	return reply.Tokens
}

func (m *execModel) Detokenize(tokens []Token) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	reply, err := m.roundTrip(helperRequest{Op: "detokenize", Tokens: tokens})
	if err != nil {
		m.log.Warn("detokenize failed", slog.String("error", err.Error()))
		return ""
	}
	return reply.Text
}

func (m *execModel) EOT() Token { return m.eot }

func (m *execModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stdin != nil {
		m.stdin.Close()
		m.stdin = nil
	}
	if m.proc != nil {
		err := m.proc.Wait()
		m.proc = nil
		return err
	}
	return nil
}
