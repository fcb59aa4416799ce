package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/easygenie/orchestrator/pkg/contracts"
	"github.com/easygenie/orchestrator/pkg/models"
)

// ── Ollama Provider ─────────────────────────────────────────

type ollamaRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature,omitempty"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Model           string `json:"model"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// OllamaDriver calls a local Ollama daemon. No API key required.
type OllamaDriver struct {
	client *http.Client
}

// NewOllamaDriver creates the Ollama driver.
func NewOllamaDriver(cfg models.ProviderConfig) *OllamaDriver {
	return &OllamaDriver{client: newHTTPClient(cfg.Timeout)}
}

func (d *OllamaDriver) Kind() models.Provider { return models.ProviderOllama }

func (d *OllamaDriver) Call(ctx context.Context, cfg models.ProviderConfig, req *contracts.DriverRequest) (*contracts.DriverResponse, error) {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}

	messages := req.Messages
	if req.System != "" {
		messages = append([]models.ChatMessage{{Role: models.RoleSystem, Content: req.System}}, messages...)
	}

	oReq := ollamaRequest{Model: req.Model, Messages: messages, Stream: false}
	oReq.Options.Temperature = req.Temperature
	oReq.Options.NumPredict = req.MaxTokens

	body, _ := json.Marshal(oReq)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("ollama: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var oResp ollamaResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oResp); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	return &contracts.DriverResponse{
		Content: oResp.Message.Content,
		Model:   oResp.Model,
		Usage: models.TokenUsage{
			PromptTokens:     oResp.PromptEvalCount,
			CompletionTokens: oResp.EvalCount,
			TotalTokens:      oResp.PromptEvalCount + oResp.EvalCount,
		},
	}, nil
}

// HealthCheck probes the daemon's tag listing, which is cheap and does
// not require a loaded model.
func (d *OllamaDriver) HealthCheck(ctx context.Context, cfg models.ProviderConfig) error {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: create request: %w", err)
	}
	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama: request failed: %w", err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: status %d", httpResp.StatusCode)
	}
	return nil
}
