package review

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/childhealth/handbookscan/internal/models"
	"github.com/childhealth/handbookscan/internal/schema"
)

// Present builds the view for a page. It never fails: payloads that do not
// decode fall back to a raw dump with a warning.
func Present(page models.Page) View {
	view := View{PageID: page.ID, PageType: page.Type}

	if !page.HasExtraction() {
		view.Kind = KindUnparsed
		return view
	}

	if err := schema.Validate(page.Type, page.Extracted); err != nil {
		view.Warnings = append(view.Warnings, err.Error())
	}

	switch page.Type {
	case models.PageTypeParentRecord:
		var rec models.ParentRecord
		if err := json.Unmarshal(page.Extracted, &rec); err != nil {
			return raw(view, page.Extracted, fmt.Errorf("failed to decode parent_record: %w", err))
		}
		view.Kind = KindForm
		view.ParentRecord = presentParentRecord(rec)
	case models.PageTypeHealthEducation:
		var rec models.HealthEducation
		if err := json.Unmarshal(page.Extracted, &rec); err != nil {
			return raw(view, page.Extracted, fmt.Errorf("failed to decode health_education: %w", err))
		}
		view.Kind = KindForm
		view.HealthEducation = presentHealthEducation(rec)
	default:
		return raw(view, page.Extracted, nil)
	}
	return view
}

func raw(view View, payload json.RawMessage, err error) View {
	view.Kind = KindRaw
	if err != nil {
		view.Warnings = append(view.Warnings, err.Error())
	}
	var buf bytes.Buffer
	if json.Indent(&buf, payload, "", "  ") == nil {
		view.Raw = buf.String()
	} else {
		view.Raw = string(payload)
	}
	return view
}

func presentParentRecord(rec models.ParentRecord) *ParentRecordView {
	v := &ParentRecordView{
		Items:         make([]ChecklistRow, 0, len(rec.ChecklistItems)),
		Notes:         rec.ParentNotes,
		VisitNumber:   rec.VisitNumber,
		AgeStage:      rec.AgeStage,
		AgeStageLabel: rec.AgeStage.Label(),
		RecordDate:    rec.RecordDate,
	}
	for _, item := range rec.ChecklistItems {
		row := ChecklistRow{
			Category: item.Category,
			Question: item.Question,
			Warning:  item.IsWarning,
		}
		if item.Result == models.AnswerYes || item.Result == models.AnswerNo {
			row.Selected = item.Result
		}
		v.Items = append(v.Items, row)
	}
	return v
}

func presentHealthEducation(rec models.HealthEducation) *HealthEducationView {
	v := &HealthEducationView{
		HospitalCode:  rec.HospitalCode,
		DoctorName:    rec.DoctorName,
		VisitNumber:   rec.VisitNumber,
		AgeStage:      rec.AgeStage,
		AgeStageLabel: rec.AgeStage.Label(),
		GuidanceDate:  rec.GuidanceDate,
		Relationship:  rec.Relationship,
	}
	for _, a := range rec.ParentAssessment {
		v.Assessments = append(v.Assessments, AssessmentRow{Topic: a.Topic, Done: a.Done, NotDone: a.NotDone})
	}
	for _, g := range rec.DoctorGuidance {
		section := GuidanceSection{Topic: g.Topic, KeyPoint: g.KeyPoint}
		for _, item := range g.Items {
			section.Items = append(section.Items, GuidanceRow{Content: item.Content, Checked: item.Checked})
		}
		v.Guidance = append(v.Guidance, section)
	}
	return v
}
