package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/clipcutter/internal/textutil"
	"github.com/kiranshivaraju/clipcutter/pkg/models"
	goopenai "github.com/sashabaranov/go-openai"
)

const maxCaptionBytes = 500

var ErrEmptyResponse = errors.New("chat completion returned no caption")

const systemPrompt = `You write short captions for vertical social-media video clips.
Reply with the caption only: one or two sentences, at most two hashtags, no quotes, no preamble.
Write in the language whose code the user gives you and match the requested tone.`

// Provider implements models.Captioner against any OpenAI-compatible
// chat completions endpoint (OpenAI, Ollama, vLLM).
type Provider struct {
	client *goopenai.Client
	model  string
	name   string
}

// Config selects the endpoint. An empty BaseURL means api.openai.com.
type Config struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

func NewProvider(cfg Config) *Provider {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &Provider{client: goopenai.NewClientWithConfig(clientCfg), model: cfg.Model, name: name}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Caption(ctx context.Context, req models.CaptionRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       p.model,
		MaxTokens:   120,
		Temperature: 0.8,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	caption := strings.Trim(strings.TrimSpace(resp.Choices[len(resp.Choices)-1].Message.Content), `"`)
	if caption == "" {
		return "", ErrEmptyResponse
	}
	return textutil.Truncate(caption, maxCaptionBytes), nil
}

func userPrompt(req models.CaptionRequest) string {
	return fmt.Sprintf("Language: %s\nTone: %s\nVideo title: %s\nClip %d of %d, from %ds to %ds.",
		req.Language, req.Style, req.JobTitle, req.Index+1, req.Total, req.StartTime, req.EndTime)
}

var _ models.Captioner = (*Provider)(nil)
