package providers

import (
	"context"
	"encoding/base64"
)

// Config represents one vision request to an LLM provider
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Prompt      string
	Image       []byte
	MIMEType    string
}

// Provider defines the interface for a vision LLM provider
type Provider interface {
	ExtractText(ctx context.Context, config Config) (string, error)
}

// ImageMIMEType returns the configured mime type, defaulting to jpeg
func (c Config) ImageMIMEType() string {
	if c.MIMEType == "" {
		return "image/jpeg"
	}
	return c.MIMEType
}

// DataURL renders the image as a base64 data URL
func (c Config) DataURL() string {
	return "data:" + c.ImageMIMEType() + ";base64," + base64.StdEncoding.EncodeToString(c.Image)
}
