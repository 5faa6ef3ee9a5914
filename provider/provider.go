package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakchai-t/doclens/config"
	"github.com/sakchai-t/doclens/models"
	ollama_provider "github.com/sakchai-t/doclens/provider/ollama"
	openai_provider "github.com/sakchai-t/doclens/provider/openai"
)

// Client represents different LLM backends
type Client string

const (
	OpenAI Client = "openai"
	Ollama Client = "ollama"
)

// Provider is the interface both generation backends satisfy. The stream
// channel is closed after the terminal event; callers must drain it.
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req models.GenRequest) (models.GenResult, error)
	GenerateStream(ctx context.Context, req models.GenRequest) (<-chan models.StreamEvent, error)
}

// NewProvider creates the configured backend. The choice is made once here;
// callers hold a Provider and never branch on the backend again.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Provider) {
	case OpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, errors.New("openai api key not configured")
		}
		return openai_provider.New(cfg.OpenAI, cfg.Timeout), nil
	case Ollama:
		return ollama_provider.New(cfg.Ollama, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
