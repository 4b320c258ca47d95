package modelpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deckpipe/deckpipe/internal/config"
)

// httpClient is the raw wire-level implementation of Client: plain
// HTTP+JSON requests against one kind's active config. It performs no
// rate limiting or retry of its own — Pool wraps it with both.
type httpClient struct {
	hc          *http.Client
	apiBase     string
	apiKey      string
	modelName   string
	maxTokens   int
	temperature float64
}

func newHTTPClient(cfg *config.ActiveModelConfig) *httpClient {
	return &httpClient{
		hc:          &http.Client{Timeout: 2 * time.Minute},
		apiBase:     cfg.APIBase,
		apiKey:      cfg.APIKey,
		modelName:   cfg.ModelName,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("modelpool: marshaling request to %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("modelpool: building request to %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &transientError{cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transientError{cause: fmt.Errorf("reading response from %s: %w", path, err)}
	}

	if resp.StatusCode >= 500 {
		return &transientError{cause: fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, data)}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("modelpool: %s returned %d: %s", path, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("modelpool: unmarshaling response from %s: %w", path, err)
	}
	return nil
}

// transientError marks a failure as retryable (network errors, 5xx,
// timeouts) so Pool's backoff wrapper knows to retry it and ModelUnavailable
// classification applies once the retry budget is exhausted.
type transientError struct{ cause error }

func (e *transientError) Error() string { return e.cause.Error() }
func (e *transientError) Unwrap() error { return e.cause }

type generateTextRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type generateTextResponse struct {
	Text string `json:"text"`
}

func (c *httpClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	var resp generateTextResponse
	err := c.post(ctx, "/v1/generate", generateTextRequest{
		Model: c.modelName, Prompt: prompt, MaxTokens: c.maxTokens, Temperature: c.temperature,
	}, &resp)
	return resp.Text, err
}

type embeddingRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type embeddingResponse struct {
	Vector []float64 `json:"vector"`
}

func (c *httpClient) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	var resp embeddingResponse
	err := c.post(ctx, "/v1/embeddings", embeddingRequest{Model: c.modelName, Text: text}, &resp)
	return resp.Vector, err
}

type analyzeRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
}

type analyzeResponse struct {
	Text string `json:"text"`
}

func (c *httpClient) AnalyzeImage(ctx context.Context, imagePath, prompt string) (string, error) {
	return c.AnalyzeImages(ctx, []string{imagePath}, prompt)
}

func (c *httpClient) AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error) {
	images := make([]string, 0, len(imagePaths))
	for _, p := range imagePaths {
		encoded, err := encodeImage(p)
		if err != nil {
			return "", fmt.Errorf("modelpool: encoding image %s: %w", p, err)
		}
		images = append(images, encoded)
	}

	var resp analyzeResponse
	err := c.post(ctx, "/v1/analyze", analyzeRequest{Model: c.modelName, Prompt: prompt, Images: images}, &resp)
	return resp.Text, err
}

func (c *httpClient) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}
