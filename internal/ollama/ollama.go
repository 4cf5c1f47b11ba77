package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/childhealth/handbookscan/internal/providers"
)

// Ollama is a vision provider for a local Ollama server
type Ollama struct {
	client *http.Client
}

// New returns a new Ollama provider
func New() *Ollama {
	return &Ollama{client: &http.Client{}}
}

func baseURL() string {
	if u := os.Getenv("OLLAMA_URL"); u != "" {
		return u
	}
	if u := os.Getenv("OLLAMA_HOST"); u != "" {
		return u
	}
	return "http://localhost:11434"
}

// ExtractText sends the prompt and page image to /api/generate
func (o *Ollama) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	url := baseURL() + "/api/generate"

	options := map[string]interface{}{
		"temperature": config.Temperature,
	}
	if config.MaxTokens > 0 {
		options["num_predict"] = config.MaxTokens
	}
	body := map[string]interface{}{
		"model":   config.Model,
		"prompt":  config.Prompt,
		"stream":  false,
		"options": options,
	}
	if len(config.Image) > 0 {
		body["images"] = []string{base64.StdEncoding.EncodeToString(config.Image)}
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
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	slog.Debug("Ollama response", "model", config.Model, "length", len(response.Response))
	return response.Response, nil
}
