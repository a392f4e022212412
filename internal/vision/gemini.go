package vision

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"stockmeta/internal/models"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.0-flash"
)

type GeminiClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewGeminiClient(baseURL, model string, httpClient *http.Client) *GeminiClient {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &GeminiClient{baseURL: strings.TrimRight(baseURL, "/"), model: model, httpClient: httpClient}
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
	Text       string            `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig map[string]any  `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) Describe(ctx context.Context, req Request) (models.RawModelOutput, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return models.RawModelOutput{}, ErrMissingKey
	}

	parts := make([]geminiPart, 0, 2)
	if req.HasImage() {
		mime, data, err := ParseDataURL(req.ImageDataURL)
		if err != nil {
			return models.RawModelOutput{}, err
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: mime, Data: data}})
	}
	parts = append(parts, geminiPart{Text: BuildPrompt(req)})

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: map[string]any{
			"temperature":      temperature,
			"responseMimeType": "application/json",
		},
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	headers := map[string]string{"x-goog-api-key": req.Credential}

	var resp geminiResponse
	if err := postJSON(ctx, c.httpClient, ProviderGemini, endpoint, headers, body, &resp); err != nil {
		return models.RawModelOutput{}, err
	}
	if len(resp.Candidates) == 0 {
		return models.RawModelOutput{}, nil
	}
	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	out, err := ParseOutput(text.String())
	if err != nil {
		return models.RawModelOutput{}, fmt.Errorf("gemini: %w", err)
	}
	return out, nil
}
