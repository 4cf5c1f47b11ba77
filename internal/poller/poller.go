package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/childhealth/handbookscan/internal/models"
)

// DefaultInterval is the time between two status fetches
const DefaultInterval = 3 * time.Second

// FetchFunc reads the full status of one session
type FetchFunc func(ctx context.Context) (*models.StatusSnapshot, error)

// Handler receives the result of every successful tick. Handlers run on the
// poller goroutine and must not call Cancel.
type Handler interface {
	HandleTick(Tick)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(Tick)

func (f HandlerFunc) HandleTick(t Tick) { f(t) }

// Poller periodically fetches a session's status until every handbook page
// has an OCR result. At most one loop runs at a time.
type Poller struct {
	fetch    FetchFunc
	handler  Handler
	exclude  func(pageID int64) bool
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	rearm  bool

	tickMu sync.Mutex
	prev   map[int64]models.PageStatus
}

// Option configures a Poller
type Option func(*Poller)

// WithInterval overrides DefaultInterval
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithExclude sets the filter for pages that must not be surfaced as Next
func WithExclude(fn func(pageID int64) bool) Option {
	return func(p *Poller) { p.exclude = fn }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates an inactive poller
func New(fetch FetchFunc, handler Handler, opts ...Option) *Poller {
	p := &Poller{
		fetch:    fetch,
		handler:  handler,
		interval: DefaultInterval,
		logger:   slog.Default(),
		prev:     make(map[int64]models.PageStatus),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Activate starts the loop if it is not running. Calling it on a running
// loop makes the loop skip its next self-termination check, so an upload
// that lands while the loop is finishing is still observed.
func (p *Poller) Activate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.rearm = true
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.rearm = false
	go p.run(ctx, cancel, done)
	p.logger.Debug("poller activated", "interval", p.interval)
}

// Cancel stops the loop and waits for it to exit. Safe to call when idle.
func (p *Poller) Cancel() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done, p.rearm = nil, nil, false
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Debug("poller cancelled")
}

// Running reports whether a loop is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Refresh performs one tick immediately, outside the schedule
func (p *Poller) Refresh(ctx context.Context) (Tick, error) {
	return p.tick(ctx)
}

func (p *Poller) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.mu.Lock()
		p.rearm = false
		p.mu.Unlock()

		t, err := p.tick(ctx)
		if err == nil && t.Progress.Done() && p.finish(cancel, done) {
			p.logger.Debug("poller finished", "progress", t.Progress.String())
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// finish clears the loop registration unless an activation arrived during
// the last tick.
func (p *Poller) finish(cancel context.CancelFunc, done chan struct{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rearm {
		return false
	}
	if p.done == done {
		p.cancel, p.done = nil, nil
	}
	cancel()
	return true
}

func (p *Poller) tick(ctx context.Context) (Tick, error) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	snapshot, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("status poll failed", "err", err)
		}
		return Tick{}, err
	}

	t := Evaluate(snapshot, p.prev, p.exclude)
	for _, c := range t.Changes {
		if !c.Valid() {
			p.logger.Warn("page status moved backwards", "page_id", c.PageID, "from", c.From, "to", c.To)
		}
	}
	p.prev = statuses(snapshot)

	if p.handler != nil {
		p.handler.HandleTick(t)
	}
	return t, nil
}
