package handlers

import (
	"net/http"

	"github.com/childhealth/handbookscan/internal/models"
)

func (h *Handler) HandleSearchPatients(w http.ResponseWriter, r *http.Request) {
	results := h.store.SearchPatients(r.URL.Query().Get("q"))
	h.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// HandlePatientRecords lists committed records; an unknown patient yields a
// null patient with whatever records exist for the id.
func (h *Handler) HandlePatientRecords(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("id")

	var patient *models.PatientRecord
	if p, ok := h.store.Patient(patientID); ok {
		patient = &p
	}
	parents, education := h.store.Records(patientID)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"patient":          patient,
		"parent_records":   parents,
		"health_education": education,
	})
}
