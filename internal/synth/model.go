package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ContentModel is the generative API the synthesizer calls. Images are raw
// JPEG bytes; an empty slice means a text-only prompt.
type ContentModel interface {
	Complete(ctx context.Context, prompt string, images [][]byte) (string, error)
}

// GroqModel talks to an OpenAI-compatible chat-completions endpoint with
// vision content parts.
type GroqModel struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

func NewGroqModel(apiKey, model, baseURL string) *GroqModel {
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}
	return &GroqModel{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL string `json:"url"`
}

func (m *GroqModel) Complete(ctx context.Context, prompt string, images [][]byte) (string, error) {
	if m.APIKey == "" {
		return "", fmt.Errorf("content model api key not set")
	}

	var content any = prompt
	if len(images) > 0 {
		parts := []contentPart{{Type: "text", Text: prompt}}
		for _, img := range images {
			parts = append(parts, contentPart{
				Type: "image_url",
				ImageURL: &imageURLPart{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
				},
			})
		}
		content = parts
	}

	reqBody := map[string]any{
		"model": m.Model,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
		"temperature": 0.7,
		"max_tokens":  512,
	}

	bodyBytes, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, "POST", m.BaseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, _ := io.ReadAll(resp.Body)

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("parse model response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("model error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
