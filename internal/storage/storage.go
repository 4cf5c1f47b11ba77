package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/childhealth/handbookscan/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Image is an uploaded page photo
type Image struct {
	Data     []byte
	MIMEType string
}

// PageRecord is a page together with its server-side state
type PageRecord struct {
	models.Page
	SessionID   int64
	Image       Image
	RawResponse string
	ConfirmedBy string
	Corrections json.RawMessage
}

type recordKey struct {
	patientID   string
	visitNumber int
}

// Store is the in-memory backing store of the reference server
type Store struct {
	mu sync.RWMutex

	sessions map[int64]*models.Session
	pages    map[int64]*PageRecord
	bySess   map[int64][]int64

	parentRecords   map[recordKey]*models.ParentRecordEntry
	healthEducation map[recordKey]*models.HealthEducationEntry
	patients        []models.PatientRecord

	nextSessionID int64
	nextPageID    int64
	nextRecordID  int64
	now           func() time.Time
}

func New() *Store {
	return &Store{
		sessions:        make(map[int64]*models.Session),
		pages:           make(map[int64]*PageRecord),
		bySess:          make(map[int64][]int64),
		parentRecords:   make(map[recordKey]*models.ParentRecordEntry),
		healthEducation: make(map[recordKey]*models.HealthEducationEntry),
		now:             time.Now,
	}
}

func (s *Store) CreateSession(scannedBy string) models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSessionID++
	session := &models.Session{
		ID:        s.nextSessionID,
		ScannedBy: scannedBy,
		Status:    models.SessionStatusOpen,
		CreatedAt: s.now().UTC(),
	}
	s.sessions[session.ID] = session
	return *session
}

func (s *Store) Session(id int64) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.Session{}, false
	}
	return *session, true
}

// AddPages appends pending pages to a session. Orders continue after the
// pages already in the session.
func (s *Store) AddPages(sessionID int64, images []Image) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	if session.Status != models.SessionStatusOpen {
		return nil, fmt.Errorf("session %d is %s: %w", sessionID, session.Status, ErrConflict)
	}

	existing := len(s.bySess[sessionID])
	ids := make([]int64, 0, len(images))
	for i, img := range images {
		s.nextPageID++
		rec := &PageRecord{
			Page: models.Page{
				ID:       s.nextPageID,
				Order:    existing + i + 1,
				Status:   models.PageStatusPending,
				HasImage: len(img.Data) > 0,
			},
			SessionID: sessionID,
			Image:     img,
		}
		s.pages[rec.ID] = rec
		s.bySess[sessionID] = append(s.bySess[sessionID], rec.ID)
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

// Status returns a consistent snapshot of a session's pages in page order
func (s *Store) Status(sessionID int64) (*models.StatusSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}

	snapshot := &models.StatusSnapshot{
		SessionID: session.ID,
		PatientID: session.PatientID,
		Status:    session.Status,
		Pages:     make([]models.Page, 0, len(s.bySess[sessionID])),
	}
	for _, id := range s.bySess[sessionID] {
		page := s.pages[id].Page
		snapshot.Pages = append(snapshot.Pages, page)
		if page.Status == models.PageStatusOCRComplete || page.Status == models.PageStatusConfirmed {
			snapshot.Completed++
		}
	}
	sort.SliceStable(snapshot.Pages, func(i, j int) bool {
		return snapshot.Pages[i].Order < snapshot.Pages[j].Order
	})
	snapshot.TotalPages = len(snapshot.Pages)
	return snapshot, nil
}

// Page returns a copy of a page record
func (s *Store) Page(pageID int64) (PageRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.pages[pageID]
	if !ok {
		return PageRecord{}, false
	}
	return *rec, true
}

// StartOCR moves a pending page to ocr_processing and returns its image
func (s *Store) StartOCR(pageID int64) (Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.transition(pageID, models.PageStatusOCRProcessing)
	if err != nil {
		return Image{}, err
	}
	return rec.Image, nil
}

// CompleteOCR stores the OCR result. A nil extraction marks a page the
// model could not read; it still completes so it can be reviewed.
func (s *Store) CompleteOCR(pageID int64, pageType models.PageType, extracted json.RawMessage, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.transition(pageID, models.PageStatusOCRComplete)
	if err != nil {
		return err
	}
	rec.Type = pageType
	rec.Extracted = extracted
	rec.RawResponse = raw
	return nil
}

// RejectPage marks a reviewed page for rescanning and drops its image
func (s *Store) RejectPage(pageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.transition(pageID, models.PageStatusRejected)
	if err != nil {
		return err
	}
	rec.Image = Image{}
	rec.HasImage = false
	return nil
}

// CompleteSession closes a session
func (s *Store) CompleteSession(sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}
	if err := session.Status.Transition(models.SessionStatusCompleted); err != nil {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	now := s.now().UTC()
	session.Status = models.SessionStatusCompleted
	session.CompletedAt = &now
	return nil
}

// transition must be called with s.mu held
func (s *Store) transition(pageID int64, next models.PageStatus) (*PageRecord, error) {
	rec, ok := s.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("page %d: %w", pageID, ErrNotFound)
	}
	if err := rec.Status.Transition(next); err != nil {
		return nil, fmt.Errorf("page %d: %w: %w", pageID, ErrConflict, err)
	}
	rec.Status = next
	return rec, nil
}
