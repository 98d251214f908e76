package autoreply

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

type GeminiConfig struct {
	APIKey string
	Model  string
}

// Gemini calls the Gemini API through google.golang.org/genai.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return &Gemini{client: client, model: cfg.Model}, nil
}

func (g *Gemini) Reply(ctx context.Context, req Request) (string, error) {
	if req.Message == "" {
		return "", ErrEmptyMessage
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Message), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.systemPrompt(), genai.RoleUser),
	})
	if err != nil {
		return "", errors.Wrap(err, "gemini generate content")
	}
	return finishReply(resp.Text())
}
