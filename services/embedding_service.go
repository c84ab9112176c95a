package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wevn/wevn/models"
)

// Embedder maps text into the vector space. Implementations load
// asynchronously; Embed blocks on readiness, and WaitReady lets callers
// gate explicitly.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	WaitReady(ctx context.Context) error
}

// OllamaEmbedder generates embeddings through a local Ollama server.
// A bounded semaphore keeps concurrent inference calls from swamping
// the model server.
type OllamaEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	gate       *Gate
	sem        *semaphore.Weighted
	logger     *zap.SugaredLogger
}

// NewOllamaEmbedder creates the embedder. Call Start to begin the
// readiness probe; Embed blocks until the first successful probe.
func NewOllamaEmbedder(client *http.Client, baseURL, model string, concurrency int, logger *zap.SugaredLogger) *OllamaEmbedder {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &OllamaEmbedder{
		httpClient: client,
		baseURL:    baseURL,
		model:      model,
		gate:       NewGate(),
		sem:        semaphore.NewWeighted(int64(concurrency)),
		logger:     logger,
	}
}

// Start probes the embedding model in the background until it answers,
// then opens the readiness gate. Cancelling ctx abandons the probe and
// fails every waiter.
func (e *OllamaEmbedder) Start(ctx context.Context) {
	go func() {
		for {
			probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			_, err := e.embed(probeCtx, "ready check")
			cancel()
			if err == nil {
				e.logger.Infow("EMBED: model ready", "model", e.model)
				e.gate.Open(nil)
				return
			}
			e.logger.Warnw("EMBED: model not ready yet", "model", e.model, "error", err)
			select {
			case <-ctx.Done():
				e.gate.Open(fmt.Errorf("%w: %v", ErrNotReady, ctx.Err()))
				return
			case <-time.After(2 * time.Second):
			}
		}
	}()
}

// WaitReady blocks until the model has answered its first probe.
func (e *OllamaEmbedder) WaitReady(ctx context.Context) error {
	return e.gate.Wait(ctx)
}

// Embed converts text to an embedding vector, waiting for readiness and
// a worker-pool slot first.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.gate.Wait(ctx); err != nil {
		return nil, err
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)
	return e.embed(ctx, text)
}

func (e *OllamaEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(models.OllamaEmbedRequest{
		Model:  e.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama api returned non-200 status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var ollamaResp models.OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return ollamaResp.Embedding, nil
}
