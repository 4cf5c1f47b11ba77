package models

import "fmt"

// PageType tags which handbook form a page holds
type PageType string

const (
	PageTypeBasicInfo       PageType = "basic_info"       // insurance / ID card
	PageTypeParentRecord    PageType = "parent_record"    // checklist-style visit record
	PageTypeHealthEducation PageType = "health_education" // guidance record
	PageTypeUnknown         PageType = "unknown"
)

// Label returns the staff-facing name of the page type. Unclassified pages
// are still being processed.
func (t PageType) Label() string {
	switch t {
	case PageTypeBasicInfo:
		return "健保卡"
	case PageTypeParentRecord:
		return "家長紀錄事項"
	case PageTypeHealthEducation:
		return "衛教指導紀錄"
	case PageTypeUnknown:
		return "未知"
	default:
		return "處理中..."
	}
}

// Valid reports whether t is one of the declared page types
func (t PageType) Valid() bool {
	switch t {
	case PageTypeBasicInfo, PageTypeParentRecord, PageTypeHealthEducation, PageTypeUnknown:
		return true
	default:
		return false
	}
}

// PageStatus is the processing state of a page.
// Allowed sequence: pending -> ocr_processing -> ocr_complete -> {confirmed | rejected}.
type PageStatus string

const (
	PageStatusPending       PageStatus = "pending"
	PageStatusOCRProcessing PageStatus = "ocr_processing"
	PageStatusOCRComplete   PageStatus = "ocr_complete"
	PageStatusConfirmed     PageStatus = "confirmed"
	PageStatusRejected      PageStatus = "rejected"
)

// rank orders statuses along the chain; terminal states share the last rank.
func (s PageStatus) rank() (int, error) {
	switch s {
	case PageStatusPending:
		return 0, nil
	case PageStatusOCRProcessing:
		return 1, nil
	case PageStatusOCRComplete:
		return 2, nil
	case PageStatusConfirmed, PageStatusRejected:
		return 3, nil
	default:
		return 0, fmt.Errorf("unknown page status %q", string(s))
	}
}

// Valid reports whether s is one of the declared statuses
func (s PageStatus) Valid() bool {
	_, err := s.rank()
	return err == nil
}

// Terminal reports whether s is confirmed or rejected
func (s PageStatus) Terminal() bool {
	return s == PageStatusConfirmed || s == PageStatusRejected
}

// Label returns the staff-facing status text
func (s PageStatus) Label() string {
	switch s {
	case PageStatusPending:
		return "等待中"
	case PageStatusOCRProcessing:
		return "辨識中"
	case PageStatusOCRComplete:
		return "待確認"
	case PageStatusConfirmed:
		return "已確認"
	case PageStatusRejected:
		return "已拒絕"
	default:
		return string(s)
	}
}

// Transition validates a single step from s to next
func (s PageStatus) Transition(next PageStatus) error {
	if !next.Valid() {
		return fmt.Errorf("unknown page status %q", string(next))
	}
	ok := false
	switch s {
	case PageStatusPending:
		ok = next == PageStatusOCRProcessing
	case PageStatusOCRProcessing:
		ok = next == PageStatusOCRComplete
	case PageStatusOCRComplete:
		ok = next == PageStatusConfirmed || next == PageStatusRejected
	case PageStatusConfirmed, PageStatusRejected:
		ok = false
	default:
		return fmt.Errorf("unknown page status %q", string(s))
	}
	if !ok {
		return fmt.Errorf("illegal page status transition %s -> %s", s, next)
	}
	return nil
}

// Precedes reports whether next is reachable from s by zero or more legal
// transitions. Pollers use it because intermediate states may be skipped
// between two snapshots.
func Precedes(s, next PageStatus) bool {
	if s == next {
		return s.Valid()
	}
	from, err := s.rank()
	if err != nil {
		return false
	}
	to, err := next.rank()
	if err != nil {
		return false
	}
	if s.Terminal() {
		return false
	}
	return to > from
}

// SessionStatus is the lifecycle of a scan session
type SessionStatus string

const (
	SessionStatusOpen      SessionStatus = "in_progress"
	SessionStatusCompleted SessionStatus = "completed"
)

// Transition validates a session lifecycle step
func (s SessionStatus) Transition(next SessionStatus) error {
	switch s {
	case SessionStatusOpen:
		if next == SessionStatusCompleted {
			return nil
		}
	case SessionStatusCompleted:
	default:
		return fmt.Errorf("unknown session status %q", string(s))
	}
	return fmt.Errorf("illegal session status transition %s -> %s", s, next)
}
