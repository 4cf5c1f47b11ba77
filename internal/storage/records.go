package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/childhealth/handbookscan/internal/models"
)

// ConfirmPage commits a reviewed page. Corrections are merged over the
// extraction key by key. Confirming the insurance card sets the session's
// patient; confirming a handbook page upserts that patient's record for the
// visit.
func (s *Store) ConfirmPage(pageID int64, confirmedBy string, corrections json.RawMessage) (models.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.pages[pageID]
	if !ok {
		return models.Page{}, fmt.Errorf("page %d: %w", pageID, ErrNotFound)
	}
	if err := rec.Status.Transition(models.PageStatusConfirmed); err != nil {
		return models.Page{}, fmt.Errorf("page %d: %w: %w", pageID, ErrConflict, err)
	}

	final, err := mergeCorrections(rec.Extracted, corrections)
	if err != nil {
		return models.Page{}, fmt.Errorf("page %d: %w", pageID, err)
	}

	session := s.sessions[rec.SessionID]
	switch rec.Type {
	case models.PageTypeBasicInfo:
		info, err := models.DecodeBasicInfo(final)
		if err != nil {
			return models.Page{}, err
		}
		if info.IDNumber != "" && session != nil {
			session.PatientID = info.IDNumber
		}
	case models.PageTypeParentRecord:
		if session != nil && session.PatientID != "" && hasPayload(final) {
			if err := s.upsertParentRecord(session.PatientID, final); err != nil {
				return models.Page{}, err
			}
		}
	case models.PageTypeHealthEducation:
		if session != nil && session.PatientID != "" && hasPayload(final) {
			if err := s.upsertHealthEducation(session.PatientID, final); err != nil {
				return models.Page{}, err
			}
		}
	}

	rec.Status = models.PageStatusConfirmed
	rec.ConfirmedBy = confirmedBy
	rec.Corrections = corrections
	rec.Extracted = final
	rec.Image = Image{}
	rec.HasImage = false
	return rec.Page, nil
}

func hasPayload(raw json.RawMessage) bool {
	return models.Page{Extracted: raw}.HasExtraction()
}

// mergeCorrections overlays the top-level keys of corrections on extracted.
// Missing or null corrections keep the extraction; a non-object extraction
// is replaced outright.
func mergeCorrections(extracted, corrections json.RawMessage) (json.RawMessage, error) {
	if !hasPayload(corrections) {
		return extracted, nil
	}

	var patch map[string]json.RawMessage
	if err := json.Unmarshal(corrections, &patch); err != nil {
		return nil, fmt.Errorf("corrections must be a JSON object: %w", err)
	}

	base := map[string]json.RawMessage{}
	if hasPayload(extracted) && bytes.HasPrefix(bytes.TrimSpace(extracted), []byte("{")) {
		if err := json.Unmarshal(extracted, &base); err != nil {
			return nil, fmt.Errorf("failed to decode extraction: %w", err)
		}
	}
	for k, v := range patch {
		base[k] = v
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged payload: %w", err)
	}
	return merged, nil
}

func (s *Store) upsertParentRecord(patientID string, final json.RawMessage) error {
	var pr models.ParentRecord
	if err := json.Unmarshal(final, &pr); err != nil {
		return fmt.Errorf("failed to decode parent_record: %w", err)
	}

	key := recordKey{patientID: patientID, visitNumber: pr.VisitNumber}
	entry, ok := s.parentRecords[key]
	if !ok {
		s.nextRecordID++
		entry = &models.ParentRecordEntry{
			ID:          s.nextRecordID,
			PatientID:   patientID,
			VisitNumber: pr.VisitNumber,
			CreatedAt:   s.now().UTC(),
		}
		s.parentRecords[key] = entry
	}
	entry.AgeStage = pr.AgeStage
	entry.RecordDate = normalizeDate(pr.RecordDate)
	entry.ChecklistItems = pr.ChecklistItems
	entry.ParentNotes = pr.ParentNotes
	return nil
}

func (s *Store) upsertHealthEducation(patientID string, final json.RawMessage) error {
	var he models.HealthEducation
	if err := json.Unmarshal(final, &he); err != nil {
		return fmt.Errorf("failed to decode health_education: %w", err)
	}

	key := recordKey{patientID: patientID, visitNumber: he.VisitNumber}
	entry, ok := s.healthEducation[key]
	if !ok {
		s.nextRecordID++
		entry = &models.HealthEducationEntry{
			ID:          s.nextRecordID,
			PatientID:   patientID,
			VisitNumber: he.VisitNumber,
			CreatedAt:   s.now().UTC(),
		}
		s.healthEducation[key] = entry
	}
	entry.AgeStage = he.AgeStage
	entry.GuidanceDate = normalizeDate(he.GuidanceDate)
	entry.ParentAssessment = he.ParentAssessment
	entry.DoctorGuidance = he.DoctorGuidance
	entry.HospitalCode = he.HospitalCode
	entry.DoctorName = he.DoctorName
	entry.Relationship = he.Relationship
	return nil
}

// Records returns a patient's committed records ordered by visit number
func (s *Store) Records(patientID string) ([]models.ParentRecordEntry, []models.HealthEducationEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parents := make([]models.ParentRecordEntry, 0)
	for key, e := range s.parentRecords {
		if key.patientID == patientID {
			parents = append(parents, *e)
		}
	}
	sort.Slice(parents, func(i, j int) bool { return parents[i].VisitNumber < parents[j].VisitNumber })

	education := make([]models.HealthEducationEntry, 0)
	for key, e := range s.healthEducation {
		if key.patientID == patientID {
			education = append(education, *e)
		}
	}
	sort.Slice(education, func(i, j int) bool { return education[i].VisitNumber < education[j].VisitNumber })

	return parents, education
}
