package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/childhealth/handbookscan/internal/providers"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini is a vision provider for Google Gemini
type Gemini struct{}

// New returns a new Gemini provider
func New() *Gemini {
	return &Gemini{}
}

// ExtractText sends the page image and prompt to Gemini
func (g *Gemini) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(config.Model)
	model.SetTemperature(float32(config.Temperature))
	if config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(config.MaxTokens))
	}

	parts := []genai.Part{}
	if len(config.Image) > 0 {
		parts = append(parts, genai.ImageData(imageFormat(config.ImageMIMEType()), config.Image))
	}
	parts = append(parts, genai.Text(config.Prompt))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return b.String(), nil
}

// imageFormat turns "image/png" into the "png" format genai.ImageData expects
func imageFormat(mimeType string) string {
	if _, format, ok := strings.Cut(mimeType, "/"); ok && format != "" {
		return format
	}
	return "jpeg"
}
