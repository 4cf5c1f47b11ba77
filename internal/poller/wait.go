package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/childhealth/handbookscan/internal/models"
)

// DefaultWaitAttempts bounds WaitForPage
const DefaultWaitAttempts = 60

var (
	// ErrOCRTimedOut is returned when a page never produced an OCR result
	ErrOCRTimedOut = errors.New("timed out waiting for OCR result")
	// ErrPageRejected is returned when the awaited page was rejected
	ErrPageRejected = errors.New("page was rejected")
)

// WaitForPage polls until pageID reaches ocr_complete or confirmed. It
// sleeps before each attempt and gives up after attempts fetches. Fetch
// errors count as an attempt and are not returned.
func WaitForPage(ctx context.Context, fetch FetchFunc, pageID int64, attempts int, interval time.Duration) (models.Page, error) {
	if attempts <= 0 {
		attempts = DefaultWaitAttempts
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer.Reset(interval)
		}
		select {
		case <-ctx.Done():
			return models.Page{}, ctx.Err()
		case <-timer.C:
		}

		snapshot, err := fetch(ctx)
		if err != nil {
			slog.Debug("waiting for page", "page_id", pageID, "attempt", i+1, "err", err)
			continue
		}
		page, ok := snapshot.Find(pageID)
		if !ok {
			continue
		}
		switch page.Status {
		case models.PageStatusOCRComplete, models.PageStatusConfirmed:
			return page, nil
		case models.PageStatusRejected:
			return page, fmt.Errorf("page %d: %w", pageID, ErrPageRejected)
		}
	}
	return models.Page{}, fmt.Errorf("page %d after %d attempts: %w", pageID, attempts, ErrOCRTimedOut)
}
