package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Answer is the checked state of a parent-record checklist item
type Answer string

const (
	AnswerYes        Answer = "是"
	AnswerNo         Answer = "否"
	AnswerUnanswered Answer = "未勾選"
)

// ageStageLabels maps visit number / age-stage code to the developmental period.
var ageStageLabels = map[int]string{
	1: "出生至二個月",
	2: "二至四個月",
	3: "四至十個月",
	4: "十個月至一歲半",
	5: "一歲半至二歲",
	6: "二至三歲",
	7: "三至未滿七歲",
}

// AgeStageLabel returns the label for a numeric code, or "" when unmapped.
func AgeStageLabel(code int) string {
	return ageStageLabels[code]
}

// AgeStage holds an age stage as extracted by OCR. The model returns either
// a numeric code or the printed title, so both are accepted.
type AgeStage string

func (a *AgeStage) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = AgeStage(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("age_stage must be a string or number: %w", err)
	}
	*a = AgeStage(n.String())
	return nil
}

// Label resolves numeric codes 1-7 to their fixed labels. Other numbers
// render empty; non-numeric text is already a label and passes through.
func (a AgeStage) Label() string {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return ""
	}
	if code, err := strconv.Atoi(s); err == nil {
		return AgeStageLabel(code)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f == float64(int(f)) {
			return AgeStageLabel(int(f))
		}
		return ""
	}
	return s
}

// BasicInfo is the insurance card extraction
type BasicInfo struct {
	Name      string `json:"name"`
	IDNumber  string `json:"id_number"`
	BirthDate string `json:"birth_date,omitempty"`
}

// ChecklistItem is one developmental milestone question
type ChecklistItem struct {
	Question  string `json:"題目"`
	Category  string `json:"類別"`
	Result    Answer `json:"結果"`
	IsWarning bool   `json:"是警訊"`
}

// ParentRecord is the 家長紀錄事項 page extraction
type ParentRecord struct {
	AgeStage       AgeStage        `json:"age_stage"`
	VisitNumber    int             `json:"visit_number"`
	RecordDate     string          `json:"record_date"`
	ChecklistItems []ChecklistItem `json:"checklist_items"`
	ParentNotes    *string         `json:"parent_notes"`
}

// Assessment is a parent self-assessment topic
type Assessment struct {
	Topic   string `json:"主題"`
	Done    bool   `json:"已做到"`
	NotDone bool   `json:"未做到,omitempty"`
}

// GuidanceItem is one checkable doctor guidance point
type GuidanceItem struct {
	Content string `json:"內容"`
	Checked bool   `json:"已勾"`
}

// GuidanceGroup groups guidance items under a topic and key point
type GuidanceGroup struct {
	Topic    string         `json:"主題"`
	KeyPoint string         `json:"重點"`
	Items    []GuidanceItem `json:"項目"`
}

// HealthEducation is the 衛教指導紀錄 page extraction
type HealthEducation struct {
	AgeStage         AgeStage        `json:"age_stage"`
	VisitNumber      int             `json:"visit_number"`
	GuidanceDate     string          `json:"guidance_date"`
	ParentAssessment []Assessment    `json:"parent_assessment"`
	DoctorGuidance   []GuidanceGroup `json:"doctor_guidance"`
	HospitalCode     string          `json:"hospital_code"`
	DoctorName       string          `json:"doctor_name"`
	Relationship     string          `json:"relationship,omitempty"`
}

// DecodeBasicInfo decodes a basic_info payload; a missing payload yields the zero value.
func DecodeBasicInfo(raw json.RawMessage) (BasicInfo, error) {
	var info BasicInfo
	if len(bytes.TrimSpace(raw)) == 0 {
		return info, nil
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return BasicInfo{}, fmt.Errorf("failed to decode basic_info: %w", err)
	}
	return info, nil
}
