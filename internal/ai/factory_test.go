package ai_test

import (
	"testing"

	"github.com/kiranshivaraju/clipcutter/internal/ai"
	"github.com/kiranshivaraju/clipcutter/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCaptioner_Template(t *testing.T) {
	p, err := ai.NewCaptioner(config.CaptionConfig{Provider: "template"})
	require.NoError(t, err)
	assert.Equal(t, "template", p.Name())
}

func TestNewCaptioner_OpenAI(t *testing.T) {
	cfg := config.CaptionConfig{
		Provider: "openai",
		OpenAI:   config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini"},
	}
	p, err := ai.NewCaptioner(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestNewCaptioner_Ollama(t *testing.T) {
	cfg := config.CaptionConfig{
		Provider: "ollama",
		Ollama:   config.OllamaConfig{BaseURL: "http://localhost:11434", Model: "llama3"},
	}
	p, err := ai.NewCaptioner(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
}

func TestNewCaptioner_VLLM(t *testing.T) {
	cfg := config.CaptionConfig{
		Provider: "vllm",
		VLLM:     config.VLLMConfig{BaseURL: "http://localhost:8000", Model: "mistral-7b"},
	}
	p, err := ai.NewCaptioner(cfg)
	require.NoError(t, err)
	assert.Equal(t, "vllm", p.Name())
}

func TestNewCaptioner_Unknown(t *testing.T) {
	_, err := ai.NewCaptioner(config.CaptionConfig{Provider: "anthropic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown caption provider")
	assert.Contains(t, err.Error(), "anthropic")
}

func TestNewCaptioner_Empty(t *testing.T) {
	_, err := ai.NewCaptioner(config.CaptionConfig{})
	require.Error(t, err)
}
