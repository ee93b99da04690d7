package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const systemPrompt = "You classify web pages for a site capture tool. " +
	"Answer with exactly what the question asks for, nothing else."

// Config controls the Ollama-backed oracle.
type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Ollama is an Oracle backed by a local Ollama chat model via the eino
// component wrapper.
type Ollama struct {
	model  model.BaseChatModel
	logger *zap.Logger
}

// NewOllama builds the chat model client. The model is not exercised until
// the first Ask.
func NewOllama(ctx context.Context, cfg Config, logger *zap.Logger) (*Ollama, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("oracle model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cm, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init ollama chat model: %w", err)
	}
	return &Ollama{model: cm, logger: logger}, nil
}

// Ask runs one completion and returns the trimmed answer text.
func (o *Ollama) Ask(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	msg, err := o.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("oracle generate: %w", err)
	}
	answer := strings.TrimSpace(msg.Content)
	o.logger.Debug("oracle answered",
		zap.Duration("dur", time.Since(start)),
		zap.Int("prompt_len", len(prompt)),
		zap.String("answer", answer),
	)
	return answer, nil
}
