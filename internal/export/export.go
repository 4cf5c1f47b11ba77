package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/childhealth/handbookscan/internal/models"
	"github.com/parquet-go/parquet-go"
)

// ChecklistRow is one 家長紀錄事項 checklist answer
type ChecklistRow struct {
	PatientID   string `parquet:"mpersonid"`
	VisitNumber int32  `parquet:"visit_number"`
	AgeStage    string `parquet:"age_stage"`
	RecordDate  string `parquet:"record_date"`
	Category    string `parquet:"category"`
	Question    string `parquet:"question"`
	Result      string `parquet:"result"`
	IsWarning   bool   `parquet:"is_warning"`
	ParentNotes string `parquet:"parent_notes"`
}

// AssessmentRow is one parent self-assessment topic
type AssessmentRow struct {
	PatientID    string `parquet:"mpersonid"`
	VisitNumber  int32  `parquet:"visit_number"`
	AgeStage     string `parquet:"age_stage"`
	GuidanceDate string `parquet:"guidance_date"`
	Topic        string `parquet:"topic"`
	Done         bool   `parquet:"done"`
	NotDone      bool   `parquet:"not_done"`
}

// GuidanceRow is one doctor guidance item
type GuidanceRow struct {
	PatientID    string `parquet:"mpersonid"`
	VisitNumber  int32  `parquet:"visit_number"`
	AgeStage     string `parquet:"age_stage"`
	GuidanceDate string `parquet:"guidance_date"`
	Topic        string `parquet:"topic"`
	KeyPoint     string `parquet:"key_point"`
	Content      string `parquet:"content"`
	Checked      bool   `parquet:"checked"`
	HospitalCode string `parquet:"hospital_code"`
	DoctorName   string `parquet:"doctor_name"`
}

// Result lists the files written and their row counts
type Result struct {
	Files map[string]int
}

func ageStage(a models.AgeStage) string {
	if label := a.Label(); label != "" {
		return label
	}
	return string(a)
}

// Flatten turns a patient's records into table rows
func Flatten(records *models.PatientRecords) ([]ChecklistRow, []AssessmentRow, []GuidanceRow) {
	var checklist []ChecklistRow
	for _, r := range records.ParentRecords {
		notes := ""
		if r.ParentNotes != nil {
			notes = *r.ParentNotes
		}
		for _, item := range r.ChecklistItems {
			checklist = append(checklist, ChecklistRow{
				PatientID:   r.PatientID,
				VisitNumber: int32(r.VisitNumber),
				AgeStage:    ageStage(r.AgeStage),
				RecordDate:  r.RecordDate,
				Category:    item.Category,
				Question:    item.Question,
				Result:      string(item.Result),
				IsWarning:   item.IsWarning,
				ParentNotes: notes,
			})
		}
	}

	var assessments []AssessmentRow
	var guidance []GuidanceRow
	for _, r := range records.HealthEducation {
		stage := ageStage(r.AgeStage)
		for _, a := range r.ParentAssessment {
			assessments = append(assessments, AssessmentRow{
				PatientID:    r.PatientID,
				VisitNumber:  int32(r.VisitNumber),
				AgeStage:     stage,
				GuidanceDate: r.GuidanceDate,
				Topic:        a.Topic,
				Done:         a.Done,
				NotDone:      a.NotDone,
			})
		}
		for _, g := range r.DoctorGuidance {
			for _, item := range g.Items {
				guidance = append(guidance, GuidanceRow{
					PatientID:    r.PatientID,
					VisitNumber:  int32(r.VisitNumber),
					AgeStage:     stage,
					GuidanceDate: r.GuidanceDate,
					Topic:        g.Topic,
					KeyPoint:     g.KeyPoint,
					Content:      item.Content,
					Checked:      item.Checked,
					HospitalCode: r.HospitalCode,
					DoctorName:   r.DoctorName,
				})
			}
		}
	}
	return checklist, assessments, guidance
}

// Write stores a patient's records as Parquet files under dir, one file per
// table. Empty tables are skipped.
func Write(dir string, records *models.PatientRecords) (*Result, error) {
	if records == nil {
		return nil, fmt.Errorf("no records to export")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	prefix := records.Patient.ID
	if prefix == "" {
		prefix = "patient"
	}
	prefix = strings.ReplaceAll(prefix, string(filepath.Separator), "_")

	checklist, assessments, guidance := Flatten(records)
	result := &Result{Files: make(map[string]int)}

	if err := writeTable(dir, prefix+"_checklist.parquet", checklist, result); err != nil {
		return nil, err
	}
	if err := writeTable(dir, prefix+"_assessment.parquet", assessments, result); err != nil {
		return nil, err
	}
	if err := writeTable(dir, prefix+"_guidance.parquet", guidance, result); err != nil {
		return nil, err
	}
	return result, nil
}

func writeTable[T any](dir, name string, rows []T, result *Result) error {
	if len(rows) == 0 {
		return nil
	}
	path := filepath.Join(dir, name)
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	slog.Debug("Wrote parquet file", "path", path, "rows", len(rows))
	result.Files[path] = len(rows)
	return nil
}
