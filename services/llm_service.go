package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// ChatModel is the language model boundary: a blocking invocation and a
// chunk-by-chunk stream. Stream calls fn for every chunk; returning an
// error from fn (including ctx.Err on client disconnect) aborts the
// underlying generation.
type ChatModel interface {
	Invoke(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string, fn func(chunk string) error) error
	WaitReady(ctx context.Context) error
}

// OllamaChat is the default ChatModel, backed by a local Ollama server
// through langchaingo.
type OllamaChat struct {
	llm    *ollama.LLM
	gate   *Gate
	logger *zap.SugaredLogger
}

// NewOllamaChat builds the client. Call Start to run the readiness
// probe; Invoke and Stream block until it succeeds.
func NewOllamaChat(serverURL, model string, logger *zap.SugaredLogger) (*OllamaChat, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama chat client: %w", err)
	}
	return &OllamaChat{llm: llm, gate: NewGate(), logger: logger}, nil
}

// Start health-checks the model in the background until it responds.
func (c *OllamaChat) Start(ctx context.Context) {
	go func() {
		for {
			probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
			_, err := llms.GenerateFromSinglePrompt(probeCtx, c.llm, "hello")
			cancel()
			if err == nil {
				c.logger.Infow("LLM: model ready")
				c.gate.Open(nil)
				return
			}
			c.logger.Warnw("LLM: model not ready yet", "error", err)
			select {
			case <-ctx.Done():
				c.gate.Open(fmt.Errorf("%w: %v", ErrNotReady, ctx.Err()))
				return
			case <-time.After(2 * time.Second):
			}
		}
	}()
}

func (c *OllamaChat) WaitReady(ctx context.Context) error {
	return c.gate.Wait(ctx)
}

func (c *OllamaChat) Invoke(ctx context.Context, prompt string) (string, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return "", err
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("ollama invoke: %w", err)
	}
	return out, nil
}

func (c *OllamaChat) Stream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	if err := c.gate.Wait(ctx); err != nil {
		return err
	}
	_, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("ollama stream: %w", err)
	}
	return nil
}

// GeminiChat is the alternate ChatModel backed by the Gemini API. The
// remote API needs no warm-up, so the gate opens immediately.
type GeminiChat struct {
	client *genai.Client
	model  string
	gate   *Gate
}

// NewGeminiChat creates the Gemini-backed chat model.
func NewGeminiChat(ctx context.Context, apiKey, model string) (*GeminiChat, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	gate := NewGate()
	gate.Open(nil)
	return &GeminiChat{client: client, model: model, gate: gate}, nil
}

func (c *GeminiChat) WaitReady(ctx context.Context) error {
	return c.gate.Wait(ctx)
}

func (c *GeminiChat) Invoke(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini invoke: %w", err)
	}
	return resp.Text(), nil
}

func (c *GeminiChat) Stream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, genai.Text(prompt), nil) {
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		if text := resp.Text(); text != "" {
			if err := fn(text); err != nil {
				return err
			}
		}
	}
	return nil
}
