// Package session drives one handbook scan workflow: staff login, patient
// identity, page review and completion.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/childhealth/handbookscan/internal/config"
	"github.com/childhealth/handbookscan/internal/models"
	"github.com/childhealth/handbookscan/internal/patients"
	"github.com/childhealth/handbookscan/internal/poller"
	"github.com/childhealth/handbookscan/internal/review"
)

// API is the part of the handbook server the controller needs
type API interface {
	CreateSession(ctx context.Context, scannedBy string) (int64, error)
	UploadPages(ctx context.Context, sessionID int64, files []models.Upload) ([]int64, error)
	SessionStatus(ctx context.Context, sessionID int64) (*models.StatusSnapshot, error)
	ConfirmPage(ctx context.Context, pageID int64, confirmedBy string, corrections any) error
	RejectPage(ctx context.Context, pageID int64) error
	CompleteSession(ctx context.Context, sessionID int64) error
	patients.Searcher
}

// Listener is notified of changes the UI should render. Calls are made
// without the controller lock held, from the caller's goroutine or the
// poller goroutine.
type Listener interface {
	StepChanged(step Step)
	ProgressChanged(progress poller.Progress, queue []models.Page)
	ReviewReady(view review.View)
}

// NopListener ignores every notification
type NopListener struct{}

func (NopListener) StepChanged(Step) {}

func (NopListener) ProgressChanged(poller.Progress, []models.Page) {}

func (NopListener) ReviewReady(review.View) {}

// scanContext is the state of one session. Only the controller touches it,
// always under Controller.mu.
type scanContext struct {
	sessionID         int64
	staffName         string
	patientID         string
	patientName       string
	identityConfirmed bool
	current           *models.Page
	resolved          map[int64]bool
	last              poller.Tick
	poller            *poller.Poller
}

// Controller owns the workflow step and the session context
type Controller struct {
	api          API
	resolver     *patients.Resolver
	listener     Listener
	logger       *slog.Logger
	pollInterval time.Duration
	waitAttempts int
	policy       config.CompletionPolicy

	mu   sync.Mutex
	step Step
	sc   *scanContext
}

// Option configures a Controller
type Option func(*Controller)

func WithListener(l Listener) Option {
	return func(c *Controller) {
		if l != nil {
			c.listener = l
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithPageWaitAttempts(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.waitAttempts = n
		}
	}
}

func WithCompletionPolicy(p config.CompletionPolicy) Option {
	return func(c *Controller) {
		if p != "" {
			c.policy = p
		}
	}
}

// NewController creates a controller at the identify-staff step
func NewController(api API, opts ...Option) *Controller {
	c := &Controller{
		api:          api,
		resolver:     patients.NewResolver(api),
		listener:     NopListener{},
		logger:       slog.Default(),
		pollInterval: poller.DefaultInterval,
		waitAttempts: poller.DefaultWaitAttempts,
		policy:       config.AllowIncomplete,
		step:         StepIdentifyStaff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Step returns the current workflow step
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// State is a read-only copy of the session context
type State struct {
	Step          Step
	SessionID     int64
	StaffName     string
	PatientID     string
	PatientName   string
	CurrentPageID int64
	Progress      poller.Progress
	Queue         []models.Page
}

// State returns a copy of the session context
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{Step: c.step}
	if c.sc == nil {
		return st
	}
	st.SessionID = c.sc.sessionID
	st.StaffName = c.sc.staffName
	st.PatientID = c.sc.patientID
	st.PatientName = c.sc.patientName
	st.Progress = c.sc.last.Progress
	st.Queue = append([]models.Page(nil), c.sc.last.Queue...)
	if c.sc.current != nil {
		st.CurrentPageID = c.sc.current.ID
	}
	return st
}

// StartSession creates a server session for staffName and moves to the
// identity step. A finished session may be followed by a new one.
func (c *Controller) StartSession(ctx context.Context, staffName string) (int64, error) {
	staffName = strings.TrimSpace(staffName)
	if staffName == "" {
		return 0, &ValidationError{Field: "staff_name", Message: "請輸入姓名"}
	}

	c.mu.Lock()
	if c.step != StepIdentifyStaff && c.step != StepDone {
		c.mu.Unlock()
		return 0, fmt.Errorf("start session at step %s: %w", c.step, ErrWrongStep)
	}
	var old *poller.Poller
	if c.sc != nil {
		old = c.sc.poller
	}
	c.mu.Unlock()

	if old != nil {
		old.Cancel()
	}

	sessionID, err := c.api.CreateSession(ctx, staffName)
	if err != nil {
		return 0, fmt.Errorf("failed to create session: %w", err)
	}

	sc := &scanContext{
		sessionID: sessionID,
		staffName: staffName,
		resolved:  make(map[int64]bool),
	}
	sc.poller = poller.New(
		func(ctx context.Context) (*models.StatusSnapshot, error) {
			return c.api.SessionStatus(ctx, sessionID)
		},
		poller.HandlerFunc(func(t poller.Tick) { c.handleTick(sc, t) }),
		poller.WithInterval(c.pollInterval),
		poller.WithExclude(func(pageID int64) bool { return c.excluded(sc, pageID) }),
		poller.WithLogger(c.logger.With("session_id", sessionID)),
	)

	c.mu.Lock()
	c.sc = sc
	c.step = StepConfirmIdentity
	c.mu.Unlock()

	c.logger.Info("scan session started", "session_id", sessionID, "staff", staffName)
	c.listener.StepChanged(StepConfirmIdentity)
	return sessionID, nil
}

// UploadPages sends photographed pages and makes sure polling is active
func (c *Controller) UploadPages(ctx context.Context, files ...models.Upload) ([]int64, error) {
	if len(files) == 0 {
		return nil, &ValidationError{Field: "images", Message: "請選擇至少一張圖片"}
	}
	sc, err := c.openSession()
	if err != nil {
		return nil, err
	}

	ids, err := c.api.UploadPages(ctx, sc.sessionID, files)
	if err != nil {
		return nil, fmt.Errorf("failed to upload pages: %w", err)
	}
	c.logger.Info("pages uploaded", "session_id", sc.sessionID, "count", len(ids))
	sc.poller.Activate()
	return ids, nil
}

// IdentityCard is the result of scanning the insurance card
type IdentityCard struct {
	PageID int64
	Info   models.BasicInfo
	// Lookup is set when the card carried an id number
	Lookup *patients.Outcome
}

// UploadIdentityCard uploads the insurance card and waits for its OCR
// result with a bounded poll. The patient is looked up when an id number
// was read.
func (c *Controller) UploadIdentityCard(ctx context.Context, file models.Upload) (*IdentityCard, error) {
	sc, err := c.openSession()
	if err != nil {
		return nil, err
	}
	if step := c.Step(); step != StepConfirmIdentity {
		return nil, fmt.Errorf("upload identity card at step %s: %w", step, ErrWrongStep)
	}

	ids, err := c.api.UploadPages(ctx, sc.sessionID, []models.Upload{file})
	if err != nil {
		return nil, fmt.Errorf("failed to upload identity card: %w", err)
	}
	if len(ids) == 0 {
		return nil, errors.New("failed to upload identity card: server returned no page id")
	}

	fetch := func(ctx context.Context) (*models.StatusSnapshot, error) {
		return c.api.SessionStatus(ctx, sc.sessionID)
	}
	page, err := poller.WaitForPage(ctx, fetch, ids[0], c.waitAttempts, c.pollInterval)
	if err != nil {
		return nil, err
	}

	info, err := models.DecodeBasicInfo(page.Extracted)
	if err != nil {
		c.logger.Warn("identity card extraction unreadable", "page_id", page.ID, "err", err)
	}
	card := &IdentityCard{PageID: page.ID, Info: info}
	if info.IDNumber != "" {
		outcome := c.LookupPatient(ctx, info.IDNumber)
		card.Lookup = &outcome
	}
	return card, nil
}

// LookupPatient searches the patient directory. A found patient's name is
// remembered for the identity confirmation.
func (c *Controller) LookupPatient(ctx context.Context, query string) patients.Outcome {
	outcome := c.resolver.Lookup(ctx, query)
	if outcome.Status == patients.Found {
		c.mu.Lock()
		if c.sc != nil && !c.sc.identityConfirmed {
			c.sc.patientName = outcome.Patients[0].Name
		}
		c.mu.Unlock()
	}
	return outcome
}

type identityCorrection struct {
	IDNumber string `json:"id_number"`
	Name     string `json:"name"`
}

// ConfirmIdentity locks the patient id for the session and confirms the
// insurance card page if one was scanned. The card confirmation is best
// effort: its failure is logged and the step still advances.
func (c *Controller) ConfirmIdentity(ctx context.Context, idNumber, displayName string) error {
	idNumber = strings.TrimSpace(idNumber)
	if idNumber == "" {
		return &ValidationError{Field: "id_number", Message: "請輸入身分證字號"}
	}

	c.mu.Lock()
	if c.sc == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.sc.identityConfirmed {
		c.mu.Unlock()
		return ErrIdentityLocked
	}
	if c.step != StepConfirmIdentity {
		step := c.step
		c.mu.Unlock()
		return fmt.Errorf("confirm identity at step %s: %w", step, ErrWrongStep)
	}
	sc := c.sc
	if name := strings.TrimSpace(displayName); name != "" {
		sc.patientName = name
	}
	sc.patientID = idNumber
	sc.identityConfirmed = true
	c.step = StepReviewPages
	correction := identityCorrection{IDNumber: idNumber, Name: sc.patientName}
	staff := sc.staffName
	c.mu.Unlock()

	if page, ok := c.identityPage(ctx, sc.sessionID); ok {
		if err := c.api.ConfirmPage(ctx, page.ID, staff, correction); err != nil {
			c.logger.Warn("failed to confirm identity card page", "page_id", page.ID, "err", err)
		} else {
			c.mu.Lock()
			sc.resolved[page.ID] = true
			c.mu.Unlock()
		}
	}

	c.logger.Info("patient identity confirmed", "session_id", sc.sessionID, "mpersonid", idNumber)
	c.listener.StepChanged(StepReviewPages)

	// pages uploaded before this step may already be done, and the poller
	// stops once everything is processed
	if _, err := sc.poller.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after identity confirmation failed", "err", err)
	}
	return nil
}

// identityPage finds the most recent insurance card page awaiting
// confirmation. Retakes leave older cards behind, so the last one wins.
// Cards still in OCR cannot be confirmed yet and are skipped.
func (c *Controller) identityPage(ctx context.Context, sessionID int64) (models.Page, bool) {
	snapshot, err := c.api.SessionStatus(ctx, sessionID)
	if err != nil {
		c.logger.Warn("failed to fetch status for identity confirmation", "session_id", sessionID, "err", err)
		return models.Page{}, false
	}
	var found models.Page
	ok := false
	for _, p := range snapshot.Pages {
		if p.Type == models.PageTypeBasicInfo && p.Status == models.PageStatusOCRComplete {
			found, ok = p, true
		}
	}
	return found, ok
}

// Current returns the view of the page under review
func (c *Controller) Current() (review.View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sc == nil || c.sc.current == nil {
		return review.View{}, false
	}
	return review.Present(*c.sc.current), true
}

// ReviewPage puts a page from the last snapshot under review, replacing the
// current one.
func (c *Controller) ReviewPage(pageID int64) (review.View, error) {
	c.mu.Lock()
	if c.sc == nil {
		c.mu.Unlock()
		return review.View{}, ErrNoSession
	}
	if c.step != StepReviewPages {
		step := c.step
		c.mu.Unlock()
		return review.View{}, fmt.Errorf("review page at step %s: %w", step, ErrWrongStep)
	}
	page, ok := c.sc.last.Snapshot.Find(pageID)
	if !ok || page.Status != models.PageStatusOCRComplete || c.sc.resolved[pageID] {
		c.mu.Unlock()
		return review.View{}, fmt.Errorf("page %d: %w", pageID, ErrNotReviewable)
	}
	c.sc.current = &page
	c.mu.Unlock()

	view := review.Present(page)
	c.listener.ReviewReady(view)
	return view, nil
}

// ConfirmCurrentReview confirms the page under review with the given
// corrections; nil confirms the extraction as-is.
func (c *Controller) ConfirmCurrentReview(ctx context.Context, corrections any) error {
	return c.resolveCurrent(ctx, 0, func(page models.Page, staff string) error {
		return c.api.ConfirmPage(ctx, page.ID, staff, corrections)
	})
}

// ConfirmReview collects corrections from an edited view and confirms its page
func (c *Controller) ConfirmReview(ctx context.Context, view review.View) error {
	corrections := review.Collect(view)
	return c.resolveCurrent(ctx, view.PageID, func(page models.Page, staff string) error {
		return c.api.ConfirmPage(ctx, page.ID, staff, corrections)
	})
}

// RejectCurrentReview rejects the page under review so it can be rescanned
func (c *Controller) RejectCurrentReview(ctx context.Context) error {
	return c.resolveCurrent(ctx, 0, func(page models.Page, _ string) error {
		return c.api.RejectPage(ctx, page.ID)
	})
}

// resolveCurrent runs a confirm or reject on the current page. On success
// the reference is cleared and the status is polled right away; on failure
// the page stays under review for a retry.
func (c *Controller) resolveCurrent(ctx context.Context, wantPageID int64, action func(models.Page, string) error) error {
	c.mu.Lock()
	if c.sc == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.sc.current == nil {
		c.mu.Unlock()
		return ErrNoActiveReview
	}
	page := *c.sc.current
	if wantPageID != 0 && wantPageID != page.ID {
		c.mu.Unlock()
		return fmt.Errorf("view for page %d, reviewing %d: %w", wantPageID, page.ID, ErrStaleReview)
	}
	sc := c.sc
	staff := sc.staffName
	c.mu.Unlock()

	if err := action(page, staff); err != nil {
		return fmt.Errorf("failed to resolve page %d: %w", page.ID, err)
	}

	c.mu.Lock()
	if sc.current != nil && sc.current.ID == page.ID {
		sc.current = nil
	}
	sc.resolved[page.ID] = true
	c.mu.Unlock()

	c.logger.Info("page resolved", "session_id", sc.sessionID, "page_id", page.ID, "page_type", page.Type)
	if _, err := sc.poller.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after review failed", "err", err)
	}
	return nil
}

// Summary describes a finished session
type Summary struct {
	SessionID       int64        `yaml:"session_id"`
	StaffName       string       `yaml:"scanned_by"`
	PatientID       string       `yaml:"mpersonid,omitempty"`
	PatientName     string       `yaml:"patient_name,omitempty"`
	Progress        string       `yaml:"progress"`
	ServerCompleted bool         `yaml:"server_completed"`
	CompletedAt     time.Time    `yaml:"completed_at"`
	Pages           []PageResult `yaml:"pages"`
}

// PageResult is one page line of a Summary
type PageResult struct {
	ID     int64  `yaml:"id"`
	Order  int    `yaml:"page_order"`
	Type   string `yaml:"page_type"`
	Status string `yaml:"status"`
}

// Message is the closing line shown to staff
func (s Summary) Message() string {
	return fmt.Sprintf("已完成 %s (%s) 的手冊掃描", s.PatientName, s.PatientID)
}

// FinishSession stops polling and closes the session. Under the
// require-terminal policy it refuses while handbook pages are still open.
// A failed completion request is logged and does not block.
func (c *Controller) FinishSession(ctx context.Context) (*Summary, error) {
	c.mu.Lock()
	if c.sc == nil {
		c.mu.Unlock()
		return nil, ErrNoSession
	}
	if c.step == StepDone {
		c.mu.Unlock()
		return nil, fmt.Errorf("finish session: %w", ErrWrongStep)
	}
	sc := c.sc
	c.mu.Unlock()

	if c.policy == config.RequireTerminal {
		snapshot, err := c.api.SessionStatus(ctx, sc.sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to verify pages before completion: %w", err)
		}
		if open := openPages(snapshot); open > 0 {
			return nil, fmt.Errorf("%d page(s) not confirmed or rejected: %w", open, ErrIncomplete)
		}
	}

	sc.poller.Cancel()

	completed := true
	if err := c.api.CompleteSession(ctx, sc.sessionID); err != nil {
		completed = false
		c.logger.Warn("failed to complete session", "session_id", sc.sessionID, "err", err)
	}

	c.mu.Lock()
	sc.current = nil
	c.step = StepDone
	summary := &Summary{
		SessionID:       sc.sessionID,
		StaffName:       sc.staffName,
		PatientID:       sc.patientID,
		PatientName:     sc.patientName,
		Progress:        sc.last.Progress.String(),
		ServerCompleted: completed,
		CompletedAt:     time.Now().UTC(),
	}
	for _, p := range sc.last.Queue {
		summary.Pages = append(summary.Pages, PageResult{ID: p.ID, Order: p.Order, Type: string(p.Type), Status: string(p.Status)})
	}
	c.mu.Unlock()

	c.logger.Info("scan session finished", "session_id", sc.sessionID, "progress", summary.Progress, "server_completed", completed)
	c.listener.StepChanged(StepDone)
	return summary, nil
}

func openPages(snapshot *models.StatusSnapshot) int {
	open := 0
	for _, p := range snapshot.Pages {
		if p.Type != models.PageTypeBasicInfo && !p.Status.Terminal() {
			open++
		}
	}
	return open
}

// openSession returns the context of a session that still accepts uploads
func (c *Controller) openSession() (*scanContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sc == nil {
		return nil, ErrNoSession
	}
	if c.step == StepDone {
		return nil, fmt.Errorf("session %d is finished: %w", c.sc.sessionID, ErrWrongStep)
	}
	return c.sc, nil
}

func (c *Controller) excluded(sc *scanContext, pageID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return (sc.current != nil && sc.current.ID == pageID) || sc.resolved[pageID]
}

// handleTick records the snapshot and, when nothing is under review, puts
// the poller's next page under review.
func (c *Controller) handleTick(sc *scanContext, t poller.Tick) {
	var view *review.View

	c.mu.Lock()
	if c.sc != sc {
		c.mu.Unlock()
		return
	}
	sc.last = t
	if c.step == StepReviewPages && sc.current == nil && t.Next != nil {
		page := *t.Next
		sc.current = &page
		v := review.Present(page)
		view = &v
	}
	c.mu.Unlock()

	c.listener.ProgressChanged(t.Progress, t.Queue)
	if view != nil {
		c.logger.Debug("page ready for review", "page_id", view.PageID, "page_type", view.PageType)
		c.listener.ReviewReady(*view)
	}
}
