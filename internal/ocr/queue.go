package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/childhealth/handbookscan/internal/models"
	"github.com/childhealth/handbookscan/internal/storage"
)

// ErrQueueClosed is returned by Enqueue after Shutdown
var ErrQueueClosed = errors.New("OCR queue is shutting down")

// Processor is the part of Service the queue depends on
type Processor interface {
	ProcessPage(ctx context.Context, image []byte, mimeType string) (Result, error)
}

// PageStore is the part of the store the queue updates
type PageStore interface {
	StartOCR(pageID int64) (storage.Image, error)
	CompleteOCR(pageID int64, pageType models.PageType, extracted json.RawMessage, raw string) error
}

// Queue runs OCR for uploaded pages on a fixed pool of workers
type Queue struct {
	proc    Processor
	store   PageStore
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan int64
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan int64, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(proc Processor, store PageStore, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		proc:    proc,
		store:   store,
		logger:  logger,
		workers: 2,
		timeout: 2 * time.Minute,
		ch:      make(chan int64, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				for pageID := range q.ch {
					q.process(workerID, pageID)
				}
				q.logger.Debug("OCR worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// process never leaves a page in ocr_processing: a failed run completes the
// page without a payload.
func (q *Queue) process(workerID int, pageID int64) {
	image, err := q.store.StartOCR(pageID)
	if err != nil {
		q.logger.Error("Failed to start OCR", "worker_id", workerID, "page_id", pageID, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	result, err := q.proc.ProcessPage(ctx, image.Data, image.MIMEType)
	cancel()

	extracted := result.Extracted
	if err != nil {
		q.logger.Error("OCR failed", "worker_id", workerID, "page_id", pageID, "err", err)
		extracted = nil
		if result.Raw == "" {
			result.Raw = err.Error()
		}
	}
	pageType := result.PageType
	if !pageType.Valid() {
		pageType = models.PageTypeUnknown
	}

	if err := q.store.CompleteOCR(pageID, pageType, extracted, result.Raw); err != nil {
		q.logger.Error("Failed to store OCR result", "worker_id", workerID, "page_id", pageID, "err", err)
		return
	}
	q.logger.Info("Processed page", "worker_id", workerID, "page_id", pageID, "page_type", pageType)
}

// Enqueue schedules a page; it blocks while the queue is full
func (q *Queue) Enqueue(pageID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("Cannot enqueue: queue is shutting down", "page_id", pageID)
		return ErrQueueClosed
	}
	select {
	case q.ch <- pageID:
	default:
		q.logger.Warn("OCR queue full, applying backpressure", "page_id", pageID)
		q.ch <- pageID
	}
	return nil
}

// Shutdown stops accepting pages and waits for queued ones to finish
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("OCR queue shutdown interrupted", "err", ctx.Err())
	case <-done:
		q.logger.Info("OCR queue drained")
	}
}
