package handbookapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/childhealth/handbookscan/internal/models"
	"github.com/google/uuid"
)

// ErrRequest marks failures where no usable response came back from the server
var ErrRequest = errors.New("handbook request failed")

// APIError is a non-2xx response; Message is the server's error text
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("handbook API returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the handbook scan server
type Client struct {
	BaseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new handbook API client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: slog.Default(),
	}
}

// CreateSession starts a scan session for a staff member
func (c *Client) CreateSession(ctx context.Context, scannedBy string) (int64, error) {
	var resp struct {
		SessionID int64 `json:"session_id"`
	}
	body := map[string]string{"scanned_by": scannedBy}
	if err := c.doJSON(ctx, http.MethodPost, "/handbook/sessions", body, &resp); err != nil {
		return 0, err
	}
	return resp.SessionID, nil
}

// UploadPages sends one or more images as a multipart "images" form
func (c *Client) UploadPages(ctx context.Context, sessionID int64, files []models.Upload) ([]int64, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i, f := range files {
		name := filepath.Base(f.Filename)
		if name == "" || name == "." {
			name = fmt.Sprintf("page_%d.jpg", i+1)
		}
		part, err := mw.CreateFormFile("images", name)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write form file: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var resp struct {
		Uploaded int     `json:"uploaded"`
		PageIDs  []int64 `json:"page_ids"`
	}
	path := fmt.Sprintf("/handbook/sessions/%d/pages", sessionID)
	if err := c.do(ctx, http.MethodPost, path, &buf, mw.FormDataContentType(), &resp); err != nil {
		return nil, err
	}
	return resp.PageIDs, nil
}

// SessionStatus fetches one snapshot of every page in the session
func (c *Client) SessionStatus(ctx context.Context, sessionID int64) (*models.StatusSnapshot, error) {
	var snapshot models.StatusSnapshot
	path := fmt.Sprintf("/handbook/sessions/%d/status", sessionID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ConfirmPage commits a page; corrections may be nil to accept the extraction as-is
func (c *Client) ConfirmPage(ctx context.Context, pageID int64, confirmedBy string, corrections any) error {
	body := map[string]any{
		"confirmed_by": confirmedBy,
		"corrections":  corrections,
	}
	path := fmt.Sprintf("/handbook/pages/%d/confirm", pageID)
	return c.doJSON(ctx, http.MethodPut, path, body, nil)
}

// RejectPage marks a page for rescanning
func (c *Client) RejectPage(ctx context.Context, pageID int64) error {
	path := fmt.Sprintf("/handbook/pages/%d/reject", pageID)
	return c.doJSON(ctx, http.MethodPut, path, nil, nil)
}

// CompleteSession closes the session on the server
func (c *Client) CompleteSession(ctx context.Context, sessionID int64) error {
	path := fmt.Sprintf("/handbook/sessions/%d/complete", sessionID)
	return c.doJSON(ctx, http.MethodPut, path, nil, nil)
}

// SearchPatients queries the patient directory by id number or name
func (c *Client) SearchPatients(ctx context.Context, query string) ([]models.PatientRecord, error) {
	var resp struct {
		Results []models.PatientRecord `json:"results"`
	}
	path := "/handbook/patients/search?q=" + url.QueryEscape(query)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// PatientRecords fetches every confirmed handbook record for a patient
func (c *Client) PatientRecords(ctx context.Context, patientID string) (*models.PatientRecords, error) {
	var records models.PatientRecords
	path := "/handbook/patients/" + url.PathEscape(patientID) + "/records"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return &records, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(bs)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, reader, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	reqID := uuid.New().String()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)

	c.logger.Debug("handbook request", "req_id", reqID, "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("handbook request failed", "req_id", reqID, "err", err, "elapsed_ms", time.Since(start).Milliseconds())
		return fmt.Errorf("%w: %s %s: %w", ErrRequest, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrRequest, err)
	}

	c.logger.Debug("handbook response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: failed to decode response from %s: %w", ErrRequest, path, err)
	}
	return nil
}

// errorMessage pulls {error} out of a failure body, falling back to the raw text.
func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
