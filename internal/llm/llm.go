// Package llm provides the text-generation backends used by claim
// extraction. A nil client is a valid runtime state: extraction treats
// it as "backend disabled" and records placeholder claims.
package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/deepgen/deepgen/internal/config"
)

const systemPrompt = "You are a genealogy research assistant."

// Client generates a completion for a single prompt.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Runtime is the resolved backend for a job: the backend and model are
// recorded on the job row; Client is nil when the backend is "none" or
// credentials are missing.
type Runtime struct {
	Backend string
	Model   string
	Client  Client
}

// Resolve builds the runtime from configuration. Unknown backends fall
// back to "none" rather than failing the job.
func Resolve(cfg config.LLMConfig) Runtime {
	switch cfg.Backend {
	case "openai":
		rt := Runtime{Backend: "openai", Model: cfg.OpenAI.Model}
		if cfg.OpenAI.Key != "" {
			rt.Client = NewOpenAI(cfg.OpenAI.Key, cfg.OpenAI.Model, WithBaseURL(cfg.OpenAI.BaseURL))
		}
		return rt
	case "anthropic":
		rt := Runtime{Backend: "anthropic", Model: cfg.Anthropic.Model}
		if cfg.Anthropic.Key != "" {
			rt.Client = NewAnthropic(cfg.Anthropic.Key, cfg.Anthropic.Model)
		}
		return rt
	case "none":
		return Runtime{Backend: "none"}
	default:
		zap.L().Warn("llm: unknown backend, falling back to none",
			zap.String("backend", cfg.Backend),
		)
		return Runtime{Backend: "none"}
	}
}
