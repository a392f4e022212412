package vision

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"stockmeta/internal/models"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// OpenAIClient talks to OpenAI-compatible chat/completions endpoints
// (OpenAI, OpenRouter and most self-hosted gateways).
type OpenAIClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOpenAIClient(baseURL, model string, httpClient *http.Client) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &OpenAIClient{baseURL: strings.TrimRight(baseURL, "/"), model: model, httpClient: httpClient}
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string     `json:"role"`
	Content []chatPart `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Describe(ctx context.Context, req Request) (models.RawModelOutput, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return models.RawModelOutput{}, ErrMissingKey
	}

	parts := make([]chatPart, 0, 2)
	if req.HasImage() {
		if _, _, err := ParseDataURL(req.ImageDataURL); err != nil {
			return models.RawModelOutput{}, err
		}
		parts = append(parts, chatPart{Type: "image_url", ImageURL: &chatImageURL{URL: req.ImageDataURL}})
	}
	parts = append(parts, chatPart{Type: "text", Text: BuildPrompt(req)})

	body := chatRequest{
		Model:          c.model,
		Messages:       []chatMessage{{Role: "user", Content: parts}},
		Temperature:    temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	headers := map[string]string{"Authorization": "Bearer " + req.Credential}

	var resp chatResponse
	if err := postJSON(ctx, c.httpClient, ProviderOpenAI, c.baseURL+"/chat/completions", headers, body, &resp); err != nil {
		return models.RawModelOutput{}, err
	}
	if len(resp.Choices) == 0 {
		return models.RawModelOutput{}, nil
	}
	out, err := ParseOutput(resp.Choices[0].Message.Content)
	if err != nil {
		return models.RawModelOutput{}, fmt.Errorf("openai: %w", err)
	}
	return out, nil
}
