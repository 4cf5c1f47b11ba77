package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/childhealth/handbookscan/internal/providers"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAI is a vision provider for any OpenAI-compatible chat completions API
type OpenAI struct {
	client *http.Client
}

// New returns a new OpenAI provider
func New() *OpenAI {
	return &OpenAI{client: &http.Client{}}
}

// ExtractText sends the prompt and page image to the chat completions endpoint
func (o *OpenAI) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	url := strings.TrimRight(baseURL, "/") + "/chat/completions"

	content := []map[string]interface{}{}
	if len(config.Image) > 0 {
		content = append(content, map[string]interface{}{
			"type":      "image_url",
			"image_url": map[string]string{"url": config.DataURL()},
		})
	}
	content = append(content, map[string]interface{}{
		"type": "text",
		"text": config.Prompt,
	})

	body := map[string]interface{}{
		"model": config.Model,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": content,
			},
		},
		"temperature": config.Temperature,
	}
	if config.MaxTokens > 0 {
		body["max_tokens"] = config.MaxTokens
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI")
	}

	text := response.Choices[0].Message.Content
	slog.Debug("OpenAI response", "model", config.Model, "length", len(text))
	return text, nil
}
