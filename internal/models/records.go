package models

import "time"

// ParentRecordEntry is a committed 家長紀錄事項 for one visit
type ParentRecordEntry struct {
	ID             int64           `json:"id"`
	PatientID      string          `json:"mpersonid"`
	VisitNumber    int             `json:"visit_number"`
	AgeStage       AgeStage        `json:"age_stage"`
	RecordDate     string          `json:"record_date,omitempty"`
	ChecklistItems []ChecklistItem `json:"checklist_items"`
	ParentNotes    *string         `json:"parent_notes"`
	CreatedAt      time.Time       `json:"created_at"`
}

// HealthEducationEntry is a committed 衛教指導紀錄 for one visit
type HealthEducationEntry struct {
	ID               int64           `json:"id"`
	PatientID        string          `json:"mpersonid"`
	VisitNumber      int             `json:"visit_number"`
	AgeStage         AgeStage        `json:"age_stage"`
	GuidanceDate     string          `json:"guidance_date,omitempty"`
	ParentAssessment []Assessment    `json:"parent_assessment"`
	DoctorGuidance   []GuidanceGroup `json:"doctor_guidance"`
	HospitalCode     string          `json:"hospital_code"`
	DoctorName       string          `json:"doctor_name"`
	Relationship     string          `json:"relationship,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// PatientRecords is everything committed for one patient
type PatientRecords struct {
	Patient         PatientRecord          `json:"patient"`
	ParentRecords   []ParentRecordEntry    `json:"parent_records"`
	HealthEducation []HealthEducationEntry `json:"health_education"`
}
