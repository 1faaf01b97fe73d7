package transcribe

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/itsdevcoffee/hyprvoice/internal/config"
)

// Load builds the model pair for the configured backend. Called once at
// daemon startup; a failure here is fatal.
func Load(cfg config.ModelConfig, logger *slog.Logger) (*Pair, error) {
	switch cfg.Mode {
	case "stub":
		var draft Model
		if cfg.DraftTokens > 0 {
			draft = NewStubModel(logger)
		}
		logger.Info("loaded stub model pair", slog.Int("draft_tokens", cfg.DraftTokens))
		return NewPair(NewStubModel(logger), draft, cfg.Prompt, cfg.MaxTokens, cfg.DraftTokens), nil

	case "exec":
		target, err := NewExecModel(cfg.Command, cfg.TargetPath, cfg.Language, logger)
		if err != nil {
			return nil, fmt.Errorf("load target model: %w", err)
		}

		var draft Model
		if cfg.DraftPath != "" && cfg.DraftTokens > 0 {
			if _, err := os.Stat(cfg.DraftPath); err != nil {
				// Missing draft model degrades to target-only decoding
				// rather than failing startup.
				logger.Info("draft model not found, decoding target-only",
					slog.String("path", cfg.DraftPath))
			} else {
				draft, err = NewExecModel(cfg.Command, cfg.DraftPath, cfg.Language, logger)
				if err != nil {
					target.Close()
					return nil, fmt.Errorf("load draft model: %w", err)
				}
			}
		}

		pair := NewPair(target, draft, cfg.Prompt, cfg.MaxTokens, cfg.DraftTokens)
		logger.Info("loaded model pair",
			slog.String("target", cfg.TargetPath),
			slog.String("capability", pair.Capability().String()))
		return pair, nil

	default:
		return nil, fmt.Errorf("unknown model mode %q", cfg.Mode)
	}
}
