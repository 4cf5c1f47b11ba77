// Package review maps OCR extractions to editable view models and back.
package review

import "github.com/childhealth/handbookscan/internal/models"

// Kind is how a view should be shown
type Kind int

const (
	// KindForm is an editable, type-specific form
	KindForm Kind = iota
	// KindRaw is a read-only dump of the extraction
	KindRaw
	// KindUnparsed means OCR produced no payload for the page
	KindUnparsed
)

func (k Kind) String() string {
	switch k {
	case KindForm:
		return "form"
	case KindRaw:
		return "raw"
	case KindUnparsed:
		return "unparsed"
	default:
		return "unknown"
	}
}

// UnparsedMessage is shown for pages without an extraction
const UnparsedMessage = "OCR 無法解析此頁面"

// View is the editable state for one page under review. PageType is carried
// through so Collect knows which variant to read back.
type View struct {
	PageID   int64
	PageType models.PageType
	Kind     Kind

	ParentRecord    *ParentRecordView
	HealthEducation *HealthEducationView

	// Raw is indented JSON for KindRaw views
	Raw      string
	Warnings []string
}

// ChecklistRow is one radio question. Selected is empty until answered.
type ChecklistRow struct {
	Category string
	Question string
	Selected models.Answer
	Warning  bool
}

// ParentRecordView is the 家長紀錄事項 form
type ParentRecordView struct {
	Items         []ChecklistRow
	Notes         *string
	VisitNumber   int
	AgeStage      models.AgeStage
	AgeStageLabel string
	RecordDate    string
}

// Select sets the answer for row i
func (v *ParentRecordView) Select(i int, answer models.Answer) bool {
	if i < 0 || i >= len(v.Items) {
		return false
	}
	switch answer {
	case models.AnswerYes, models.AnswerNo:
		v.Items[i].Selected = answer
	default:
		v.Items[i].Selected = ""
	}
	return true
}

// AssessmentRow is one parent self-assessment checkbox
type AssessmentRow struct {
	Topic   string
	Done    bool
	NotDone bool
}

// GuidanceRow is one doctor guidance checkbox
type GuidanceRow struct {
	Content string
	Checked bool
}

// GuidanceSection groups guidance rows under a topic
type GuidanceSection struct {
	Topic    string
	KeyPoint string
	Items    []GuidanceRow
}

// HealthEducationView is the 衛教指導紀錄 form
type HealthEducationView struct {
	Assessments   []AssessmentRow
	Guidance      []GuidanceSection
	HospitalCode  string
	DoctorName    string
	VisitNumber   int
	AgeStage      models.AgeStage
	AgeStageLabel string
	GuidanceDate  string
	Relationship  string
}
