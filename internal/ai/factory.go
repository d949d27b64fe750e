package ai

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/clipcutter/internal/ai/openai"
	"github.com/kiranshivaraju/clipcutter/internal/config"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
)

// NewCaptioner constructs the configured caption provider.
// Called once at server startup.
func NewCaptioner(cfg config.CaptionConfig) (models.Captioner, error) {
	switch cfg.Provider {
	case "template":
		return NewTemplateCaptioner(), nil
	case "openai":
		return openai.NewProvider(openai.Config{
			Name:    "openai",
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		}), nil
	case "ollama":
		return openai.NewProvider(openai.Config{
			Name:    "ollama",
			APIKey:  "ollama",
			BaseURL: compatEndpoint(cfg.Ollama.BaseURL),
			Model:   cfg.Ollama.Model,
		}), nil
	case "vllm":
		return openai.NewProvider(openai.Config{
			Name:    "vllm",
			APIKey:  "vllm",
			BaseURL: compatEndpoint(cfg.VLLM.BaseURL),
			Model:   cfg.VLLM.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unknown caption provider %q: must be one of template, openai, ollama, vllm", cfg.Provider)
	}
}

// compatEndpoint returns the OpenAI-compatible API root of a self-hosted server.
func compatEndpoint(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}
