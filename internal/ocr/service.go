package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/childhealth/handbookscan/internal/gemini"
	"github.com/childhealth/handbookscan/internal/models"
	"github.com/childhealth/handbookscan/internal/ollama"
	"github.com/childhealth/handbookscan/internal/openai"
	"github.com/childhealth/handbookscan/internal/providers"
	"github.com/childhealth/handbookscan/internal/schema"
)

const (
	temperature = 0.1
	maxTokens   = 4096
)

// ErrUnparseable is returned when the model answer holds no JSON object
var ErrUnparseable = errors.New("unparseable OCR response")

// Result is the outcome of classifying and extracting one page
type Result struct {
	PageType   models.PageType
	Confidence float64
	Extracted  json.RawMessage
	Raw        string
}

// Service runs the two-stage classify/extract pipeline on page images
type Service struct {
	provider providers.Provider
	model    string
	logger   *slog.Logger
}

// NewProvider returns the vision provider registered under name
func NewProvider(name string) (providers.Provider, error) {
	switch name {
	case "openai":
		return openai.New(), nil
	case "ollama":
		return ollama.New(), nil
	case "gemini":
		return gemini.New(), nil
	default:
		return nil, fmt.Errorf("unsupported OCR provider: %s", name)
	}
}

// NewService creates a new OCR service
func NewService(provider providers.Provider, model string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, model: model, logger: logger}
}

// ProcessPage classifies the page and extracts its fields. Unknown pages
// and answers that are not JSON yield a nil extraction with a nil error so
// the page can still be reviewed. The returned Result is filled as far as
// the pipeline got even when an error is returned.
func (s *Service) ProcessPage(ctx context.Context, image []byte, mimeType string) (Result, error) {
	result := Result{PageType: models.PageTypeUnknown}

	pageType, confidence, raw, err := s.classify(ctx, image, mimeType)
	if err != nil {
		return result, fmt.Errorf("failed to classify page: %w", err)
	}
	result.PageType = pageType
	result.Confidence = confidence
	result.Raw = raw

	prompt, ok := extractPrompt(pageType)
	if !ok {
		s.logger.Info("Page not recognised", "confidence", confidence)
		return result, nil
	}

	raw, err = s.call(ctx, prompt, image, mimeType)
	if err != nil {
		return result, fmt.Errorf("failed to extract %s: %w", pageType, err)
	}
	result.Raw = raw

	extracted, err := parseObject(raw)
	if err != nil {
		s.logger.Warn("Extraction was not JSON", "page_type", pageType, "err", err)
		return result, nil
	}
	if err := schema.Validate(pageType, extracted); err != nil {
		s.logger.Warn("Extraction does not match schema", "page_type", pageType, "err", err)
	}
	result.Extracted = extracted

	s.logger.Info("Extracted page", "page_type", pageType, "confidence", confidence, "length", len(extracted))
	return result, nil
}

func (s *Service) classify(ctx context.Context, image []byte, mimeType string) (models.PageType, float64, string, error) {
	raw, err := s.call(ctx, classifyPrompt, image, mimeType)
	if err != nil {
		return models.PageTypeUnknown, 0, "", err
	}

	obj, err := parseObject(raw)
	if err != nil {
		return models.PageTypeUnknown, 0, raw, nil
	}
	var answer struct {
		PageType   models.PageType `json:"page_type"`
		Confidence float64         `json:"confidence"`
		Reason     string          `json:"reason"`
	}
	if err := json.Unmarshal(obj, &answer); err != nil || !answer.PageType.Valid() {
		return models.PageTypeUnknown, answer.Confidence, raw, nil
	}
	s.logger.Debug("Classified page", "page_type", answer.PageType, "reason", answer.Reason)
	return answer.PageType, answer.Confidence, raw, nil
}

func (s *Service) call(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	return s.provider.ExtractText(ctx, providers.Config{
		Model:       s.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Prompt:      prompt,
		Image:       image,
		MIMEType:    mimeType,
	})
}

// cleanJSONResponse strips a surrounding markdown code fence
func cleanJSONResponse(raw string) string {
	clean := strings.TrimSpace(raw)
	if !strings.HasPrefix(clean, "```") {
		return clean
	}
	if _, rest, ok := strings.Cut(clean, "\n"); ok {
		clean = rest
	} else {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")
	return strings.TrimSpace(clean)
}

// parseObject returns the compacted JSON object held in a model answer
func parseObject(raw string) (json.RawMessage, error) {
	clean := cleanJSONResponse(raw)
	if !strings.HasPrefix(clean, "{") {
		return nil, ErrUnparseable
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(clean)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparseable, err)
	}
	return buf.Bytes(), nil
}
