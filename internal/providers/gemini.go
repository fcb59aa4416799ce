package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/easygenie/orchestrator/pkg/contracts"
	"github.com/easygenie/orchestrator/pkg/models"
)

// ── Gemini Provider ─────────────────────────────────────────

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature,omitempty"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// GeminiDriver calls the Google Generative Language API.
type GeminiDriver struct {
	client *http.Client
}

// NewGeminiDriver creates the Gemini driver.
func NewGeminiDriver(cfg models.ProviderConfig) *GeminiDriver {
	return &GeminiDriver{client: newHTTPClient(cfg.Timeout)}
}

func (d *GeminiDriver) Kind() models.Provider { return models.ProviderGemini }

func (d *GeminiDriver) Call(ctx context.Context, cfg models.ProviderConfig, req *contracts.DriverRequest) (*contracts.DriverResponse, error) {
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api_key not configured")
	}

	// Gemini uses "model" for assistant turns and folds system prompts
	// into systemInstruction.
	gReq := geminiRequest{}
	if req.System != "" {
		gReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := "user"
		switch m.Role {
		case models.RoleAssistant:
			role = "model"
		case models.RoleSystem:
			if gReq.SystemInstruction == nil {
				gReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			}
			continue
		}
		gReq.Contents = append(gReq.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	gReq.GenerationConfig.Temperature = req.Temperature
	gReq.GenerationConfig.MaxOutputTokens = req.MaxTokens

	body, _ := json.Marshal(gReq)
	callURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		endpoint, req.Model, url.QueryEscape(cfg.APIKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, callURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("gemini: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var gResp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&gResp); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(gResp.Candidates) == 0 || len(gResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini: empty candidates in response")
	}

	return &contracts.DriverResponse{
		Content: gResp.Candidates[0].Content.Parts[0].Text,
		Model:   req.Model,
		Usage: models.TokenUsage{
			PromptTokens:     gResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: gResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gResp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

// HealthCheck sends a minimal generation to validate credentials.
func (d *GeminiDriver) HealthCheck(ctx context.Context, cfg models.ProviderConfig) error {
	_, err := d.Call(ctx, cfg, &contracts.DriverRequest{
		Model:     cfg.Model,
		Messages:  []models.ChatMessage{{Role: models.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return err
}
