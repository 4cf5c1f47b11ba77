package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Session represents one staff-initiated handbook scan workflow
type Session struct {
	ID          int64         `json:"session_id"`
	ScannedBy   string        `json:"scanned_by"`
	PatientID   string        `json:"mpersonid,omitempty"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Page represents one photographed handbook page as reported by the server
type Page struct {
	ID        int64           `json:"id"`
	Order     int             `json:"page_order"`
	Type      PageType        `json:"page_type"`
	Status    PageStatus      `json:"status"`
	Extracted json.RawMessage `json:"ocr_extracted_json"`
	HasImage  bool            `json:"has_image"`
}

// HasExtraction reports whether the OCR payload is present. An empty object
// counts as present; a missing field or JSON null does not.
func (p Page) HasExtraction() bool {
	trimmed := bytes.TrimSpace(p.Extracted)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// StatusSnapshot is one consistent read of a session's pages
type StatusSnapshot struct {
	SessionID  int64         `json:"session_id"`
	PatientID  string        `json:"mpersonid"`
	Status     SessionStatus `json:"status"`
	TotalPages int           `json:"total_pages"`
	Completed  int           `json:"completed"`
	Pages      []Page        `json:"pages"`
}

// Find returns the page with the given id
func (s *StatusSnapshot) Find(pageID int64) (Page, bool) {
	if s == nil {
		return Page{}, false
	}
	for _, p := range s.Pages {
		if p.ID == pageID {
			return p, true
		}
	}
	return Page{}, false
}

// PatientRecord is a patient returned by the lookup service
type PatientRecord struct {
	ID          string `json:"mpersonid"`
	Name        string `json:"name"`
	Sex         string `json:"sex"`
	BirthDate   string `json:"birth_date"`
	PhoneHome   string `json:"phone_home,omitempty"`
	PhoneMobile string `json:"phone_mobile,omitempty"`
	Found       *bool  `json:"found,omitempty"`
}

// SexLabel renders the sex code the way the staff UI shows it
func (p PatientRecord) SexLabel() string {
	switch p.Sex {
	case "M":
		return "男"
	case "F":
		return "女"
	default:
		return p.Sex
	}
}

// Upload is one image file sent to the pages endpoint
type Upload struct {
	Filename string
	Data     []byte
}
