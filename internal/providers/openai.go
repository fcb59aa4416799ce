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

// ── OpenAI Provider ─────────────────────────────────────────

type openAIRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature,omitempty"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// OpenAIDriver calls the OpenAI chat completions API.
type OpenAIDriver struct {
	client *http.Client
}

// NewOpenAIDriver creates the OpenAI driver.
func NewOpenAIDriver(cfg models.ProviderConfig) *OpenAIDriver {
	return &OpenAIDriver{client: newHTTPClient(cfg.Timeout)}
}

func (d *OpenAIDriver) Kind() models.Provider { return models.ProviderOpenAI }

func (d *OpenAIDriver) Call(ctx context.Context, cfg models.ProviderConfig, req *contracts.DriverRequest) (*contracts.DriverResponse, error) {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key not configured")
	}

	messages := req.Messages
	if req.System != "" {
		messages = append([]models.ChatMessage{{Role: models.RoleSystem, Content: req.System}}, messages...)
	}

	body, _ := json.Marshal(openAIRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("openai: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	return &contracts.DriverResponse{
		Content: oaiResp.Choices[0].Message.Content,
		Model:   oaiResp.Model,
		Usage: models.TokenUsage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}, nil
}

// HealthCheck sends a 1-token completion to validate credentials.
func (d *OpenAIDriver) HealthCheck(ctx context.Context, cfg models.ProviderConfig) error {
	_, err := d.Call(ctx, cfg, &contracts.DriverRequest{
		Model:     cfg.Model,
		Messages:  []models.ChatMessage{{Role: models.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return err
}
