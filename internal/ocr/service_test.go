package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/childhealth/handbookscan/internal/models"
	"github.com/childhealth/handbookscan/internal/providers"
	"github.com/childhealth/handbookscan/internal/storage"
)

// scriptedProvider answers the classify prompt and the extract prompt with
// fixed responses and records every request.
type scriptedProvider struct {
	mu       sync.Mutex
	classify string
	extract  string
	err      error
	calls    []providers.Config
}

func (p *scriptedProvider) ExtractText(_ context.Context, config providers.Config) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, config)
	if p.err != nil {
		return "", p.err
	}
	if config.Prompt == classifyPrompt {
		return p.classify, nil
	}
	return p.extract, nil
}

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: ` {"a":1} `, want: `{"a":1}`},
		{name: "json fence", raw: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", raw: "```\n{\"a\":1}```", want: `{"a":1}`},
		{name: "single line fence", raw: "```{\"a\":1}```", want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanJSONResponse(tt.raw); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProcessPage(t *testing.T) {
	tests := []struct {
		name          string
		classify      string
		extract       string
		wantType      models.PageType
		wantExtracted string
		wantCalls     int
	}{
		{
			name:          "basic info",
			classify:      "```json\n{\"page_type\":\"basic_info\",\"confidence\":0.9,\"reason\":\"card\"}\n```",
			extract:       `{"name": "陳小明", "id_number": "A123456789", "birth_date": "2023-05-01"}`,
			wantType:      models.PageTypeBasicInfo,
			wantExtracted: `{"name":"陳小明","id_number":"A123456789","birth_date":"2023-05-01"}`,
			wantCalls:     2,
		},
		{
			name:      "unknown page skips extraction",
			classify:  `{"page_type":"unknown","confidence":0.2}`,
			wantType:  models.PageTypeUnknown,
			wantCalls: 1,
		},
		{
			name:      "classifier prose",
			classify:  "I think this is a card",
			wantType:  models.PageTypeUnknown,
			wantCalls: 1,
		},
		{
			name:      "invented page type",
			classify:  `{"page_type":"vaccination","confidence":0.8}`,
			wantType:  models.PageTypeUnknown,
			wantCalls: 1,
		},
		{
			name:      "extraction prose",
			classify:  `{"page_type":"parent_record","confidence":0.7}`,
			extract:   "sorry, too blurry",
			wantType:  models.PageTypeParentRecord,
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{classify: tt.classify, extract: tt.extract}
			svc := NewService(p, "test-model", nil)

			result, err := svc.ProcessPage(context.Background(), []byte("img"), "image/png")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.PageType != tt.wantType {
				t.Errorf("page type = %s, want %s", result.PageType, tt.wantType)
			}
			if string(result.Extracted) != tt.wantExtracted {
				t.Errorf("extracted = %s, want %s", result.Extracted, tt.wantExtracted)
			}
			if len(p.calls) != tt.wantCalls {
				t.Fatalf("provider calls = %d, want %d", len(p.calls), tt.wantCalls)
			}
			for _, c := range p.calls {
				if c.Model != "test-model" || c.MIMEType != "image/png" || string(c.Image) != "img" {
					t.Errorf("unexpected request %+v", c)
				}
				if c.Temperature != temperature || c.MaxTokens != maxTokens {
					t.Errorf("temperature=%v max_tokens=%d", c.Temperature, c.MaxTokens)
				}
			}
		})
	}
}

func TestProcessPageProviderError(t *testing.T) {
	p := &scriptedProvider{err: errors.New("connection refused")}
	svc := NewService(p, "m", nil)

	result, err := svc.ProcessPage(context.Background(), []byte("img"), "image/jpeg")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected provider error, got %v", err)
	}
	if result.PageType != models.PageTypeUnknown || result.Extracted != nil {
		t.Errorf("result = %+v", result)
	}
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"openai", "ollama", "gemini"} {
		if _, err := NewProvider(name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := NewProvider("tesseract"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

type failingProcessor struct{}

func (failingProcessor) ProcessPage(context.Context, []byte, string) (Result, error) {
	return Result{PageType: models.PageTypeHealthEducation}, errors.New("model timed out")
}

func waitForStatus(t *testing.T, store *storage.Store, pageID int64, want models.PageStatus) storage.PageRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, _ := store.Page(pageID)
		if rec.Status == want {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	rec, _ := store.Page(pageID)
	t.Fatalf("page %d status = %s, want %s", pageID, rec.Status, want)
	return rec
}

func TestQueueCompletesPages(t *testing.T) {
	store := storage.New()
	session := store.CreateSession("Lin")
	ids, err := store.AddPages(session.ID, []storage.Image{{Data: []byte("a"), MIMEType: "image/png"}})
	if err != nil {
		t.Fatal(err)
	}

	p := &scriptedProvider{
		classify: `{"page_type":"basic_info","confidence":1}`,
		extract:  `{"name":"陳小明","id_number":"A123456789"}`,
	}
	q := NewQueue(NewService(p, "m", nil), store, nil, WithWorkers(1))
	if err := q.Enqueue(ids[0]); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	rec := waitForStatus(t, store, ids[0], models.PageStatusOCRComplete)
	if rec.Type != models.PageTypeBasicInfo {
		t.Errorf("type = %s", rec.Type)
	}
	var info models.BasicInfo
	if err := json.Unmarshal(rec.Extracted, &info); err != nil || info.IDNumber != "A123456789" {
		t.Errorf("extracted = %s (%v)", rec.Extracted, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)
	q.Shutdown(ctx)
	if err := q.Enqueue(ids[0]); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after shutdown: %v", err)
	}
}

func TestQueueFailureCompletesWithoutPayload(t *testing.T) {
	store := storage.New()
	session := store.CreateSession("Lin")
	ids, _ := store.AddPages(session.ID, []storage.Image{{Data: []byte("a")}})

	q := NewQueue(failingProcessor{}, store, nil)
	defer q.Shutdown(context.Background())
	if err := q.Enqueue(ids[0]); err != nil {
		t.Fatal(err)
	}

	rec := waitForStatus(t, store, ids[0], models.PageStatusOCRComplete)
	if rec.HasExtraction() {
		t.Errorf("failed OCR should carry no payload, got %s", rec.Extracted)
	}
	if rec.Type != models.PageTypeHealthEducation || rec.RawResponse != "model timed out" {
		t.Errorf("record = %+v raw=%q", rec.Page, rec.RawResponse)
	}
}
