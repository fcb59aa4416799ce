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

// ── Anthropic Provider ──────────────────────────────────────

const anthropicVersion = "2023-06-01"

type anthropicRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	System      string               `json:"system,omitempty"`
	Temperature float64              `json:"temperature,omitempty"`
	MaxTokens   int                  `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Model string `json:"model"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// AnthropicDriver calls the Anthropic messages API.
type AnthropicDriver struct {
	client *http.Client
}

// NewAnthropicDriver creates the Anthropic driver.
func NewAnthropicDriver(cfg models.ProviderConfig) *AnthropicDriver {
	return &AnthropicDriver{client: newHTTPClient(cfg.Timeout)}
}

func (d *AnthropicDriver) Kind() models.Provider { return models.ProviderAnthropic }

func (d *AnthropicDriver) Call(ctx context.Context, cfg models.ProviderConfig, req *contracts.DriverRequest) (*contracts.DriverResponse, error) {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = "https://api.anthropic.com"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api_key not configured")
	}

	// The messages API takes the system prompt as a top-level field,
	// not as a message role.
	system := req.System
	messages := make([]models.ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == models.RoleSystem {
			if system == "" {
				system = m.Content
			}
			continue
		}
		messages = append(messages, m)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body, _ := json.Marshal(anthropicRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      system,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("anthropic: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var anthResp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthResp); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}
	if len(anthResp.Content) == 0 {
		return nil, fmt.Errorf("anthropic: empty content in response")
	}

	return &contracts.DriverResponse{
		Content: anthResp.Content[0].Text,
		Model:   anthResp.Model,
		Usage: models.TokenUsage{
			PromptTokens:     anthResp.Usage.InputTokens,
			CompletionTokens: anthResp.Usage.OutputTokens,
			TotalTokens:      anthResp.Usage.InputTokens + anthResp.Usage.OutputTokens,
		},
	}, nil
}

// HealthCheck sends a 1-token message to validate credentials.
func (d *AnthropicDriver) HealthCheck(ctx context.Context, cfg models.ProviderConfig) error {
	_, err := d.Call(ctx, cfg, &contracts.DriverRequest{
		Model:     cfg.Model,
		Messages:  []models.ChatMessage{{Role: models.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return err
}
