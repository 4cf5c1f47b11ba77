package review

import "github.com/childhealth/handbookscan/internal/models"

// Collect reads an edited view back into the correction payload for the
// confirm request. It returns nil for views without an editable form,
// which confirms the page with empty corrections.
func Collect(view View) any {
	if view.Kind != KindForm {
		return nil
	}
	switch view.PageType {
	case models.PageTypeParentRecord:
		if view.ParentRecord == nil {
			return nil
		}
		return collectParentRecord(view.ParentRecord)
	case models.PageTypeHealthEducation:
		if view.HealthEducation == nil {
			return nil
		}
		return collectHealthEducation(view.HealthEducation)
	default:
		return nil
	}
}

func collectParentRecord(v *ParentRecordView) models.ParentRecord {
	rec := models.ParentRecord{
		AgeStage:       v.AgeStage,
		VisitNumber:    v.VisitNumber,
		RecordDate:     v.RecordDate,
		ChecklistItems: make([]models.ChecklistItem, 0, len(v.Items)),
		ParentNotes:    v.Notes,
	}
	for _, row := range v.Items {
		result := row.Selected
		if result != models.AnswerYes && result != models.AnswerNo {
			result = models.AnswerUnanswered
		}
		rec.ChecklistItems = append(rec.ChecklistItems, models.ChecklistItem{
			Question:  row.Question,
			Category:  row.Category,
			Result:    result,
			IsWarning: row.Warning,
		})
	}
	return rec
}

func collectHealthEducation(v *HealthEducationView) models.HealthEducation {
	rec := models.HealthEducation{
		AgeStage:         v.AgeStage,
		VisitNumber:      v.VisitNumber,
		GuidanceDate:     v.GuidanceDate,
		ParentAssessment: make([]models.Assessment, 0, len(v.Assessments)),
		DoctorGuidance:   make([]models.GuidanceGroup, 0, len(v.Guidance)),
		HospitalCode:     v.HospitalCode,
		DoctorName:       v.DoctorName,
		Relationship:     v.Relationship,
	}
	for _, a := range v.Assessments {
		rec.ParentAssessment = append(rec.ParentAssessment, models.Assessment{
			Topic:   a.Topic,
			Done:    a.Done,
			NotDone: a.NotDone && !a.Done,
		})
	}
	for _, s := range v.Guidance {
		group := models.GuidanceGroup{Topic: s.Topic, KeyPoint: s.KeyPoint, Items: make([]models.GuidanceItem, 0, len(s.Items))}
		for _, item := range s.Items {
			group.Items = append(group.Items, models.GuidanceItem{Content: item.Content, Checked: item.Checked})
		}
		rec.DoctorGuidance = append(rec.DoctorGuidance, group)
	}
	return rec
}
