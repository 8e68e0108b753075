// Package advisory wraps the external text-generation service that produces
// conversational replies and post-acceptance notes. Callers treat every
// failure as recoverable and fall back to static text.
package advisory

import (
	"context"
	"fmt"
	"strings"

	"github.com/firstsignal/signalbot/pkg/config"
)

const systemPrompt = "You are the voice of First Signal, a service that delivers anonymous " +
	"signals between people. Reply in one or two short, warm sentences. Never " +
	"reveal who sent a signal or speculate about identities."

// Provider generates advisory text from a context string.
type Provider interface {
	Generate(ctx context.Context, contextText string) (string, error)
	Name() string
}

// NewProvider builds the configured provider, or nil when advisory is
// disabled. A comma-separated list ("anthropic,openai") builds a failover
// chain tried in order. Unknown provider names are a configuration error.
func NewProvider(cfg config.AdvisoryConfig) (Provider, error) {
	names := strings.Split(cfg.Provider, ",")
	if len(names) > 1 {
		chain := make([]Provider, 0, len(names))
		for _, name := range names {
			single := cfg
			single.Provider = strings.TrimSpace(name)
			p, err := NewProvider(single)
			if err != nil {
				return nil, err
			}
			if p != nil {
				chain = append(chain, p)
			}
		}
		if len(chain) == 0 {
			return nil, nil
		}
		if len(chain) == 1 {
			return chain[0], nil
		}
		return newFailoverChain(chain), nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "":
		return nil, nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("advisory provider anthropic requires an API key")
		}
		return newAnthropicProvider(cfg), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("advisory provider openai requires an API key")
		}
		return newOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown advisory provider %q", cfg.Provider)
	}
}
