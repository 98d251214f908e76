package autoreply

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

const (
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"
	ProviderNone     = "none"
)

type Config struct {
	Provider string
	DeepSeek DeepSeekConfig
	Gemini   GeminiConfig
}

// New builds the configured policy. It returns a nil Policy for
// ProviderNone or when the selected provider has no API key, so callers can
// run without auto-replies.
func New(ctx context.Context, cfg Config) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderDeepSeek:
		if cfg.DeepSeek.APIKey == "" {
			return nil, nil
		}
		ds, err := NewDeepSeek(cfg.DeepSeek)
		if err != nil {
			return nil, err
		}
		return ds, nil
	case ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, nil
		}
		gm, err := NewGemini(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		return gm, nil
	case ProviderNone:
		return nil, nil
	default:
		return nil, errors.Errorf("unknown auto-reply provider %q", cfg.Provider)
	}
}
