package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/childhealth/handbookscan/internal/models"
)

func readyPage(t *testing.T, s *Store, sessionID int64, pageType models.PageType, extracted string) int64 {
	t.Helper()
	ids, err := s.AddPages(sessionID, []Image{{Data: []byte("img"), MIMEType: "image/png"}})
	if err != nil {
		t.Fatalf("AddPages: %v", err)
	}
	if _, err := s.StartOCR(ids[0]); err != nil {
		t.Fatalf("StartOCR: %v", err)
	}
	var raw json.RawMessage
	if extracted != "" {
		raw = json.RawMessage(extracted)
	}
	if err := s.CompleteOCR(ids[0], pageType, raw, extracted); err != nil {
		t.Fatalf("CompleteOCR: %v", err)
	}
	return ids[0]
}

func TestAddPagesContinuesOrder(t *testing.T) {
	s := New()
	session := s.CreateSession("Lin")

	first, err := s.AddPages(session.ID, []Image{{Data: []byte("a")}, {Data: []byte("b")}})
	if err != nil {
		t.Fatalf("AddPages: %v", err)
	}
	second, err := s.AddPages(session.ID, []Image{{Data: []byte("c")}})
	if err != nil {
		t.Fatalf("AddPages: %v", err)
	}

	snapshot, err := s.Status(session.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snapshot.TotalPages != 3 || snapshot.Completed != 0 {
		t.Fatalf("got total=%d completed=%d", snapshot.TotalPages, snapshot.Completed)
	}
	want := []int64{first[0], first[1], second[0]}
	for i, p := range snapshot.Pages {
		if p.ID != want[i] || p.Order != i+1 {
			t.Errorf("page %d: id=%d order=%d, want id=%d order=%d", i, p.ID, p.Order, want[i], i+1)
		}
		if p.Status != models.PageStatusPending || !p.HasImage {
			t.Errorf("page %d: status=%s has_image=%v", i, p.Status, p.HasImage)
		}
	}
}

func TestAddPagesErrors(t *testing.T) {
	s := New()
	if _, err := s.AddPages(99, []Image{{Data: []byte("a")}}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown session: got %v", err)
	}

	session := s.CreateSession("Lin")
	if err := s.CompleteSession(session.ID); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if _, err := s.AddPages(session.ID, []Image{{Data: []byte("a")}}); !errors.Is(err, ErrConflict) {
		t.Errorf("completed session: got %v", err)
	}
	if err := s.CompleteSession(session.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("second complete: got %v", err)
	}
}

func TestPageTransitions(t *testing.T) {
	s := New()
	session := s.CreateSession("Lin")
	ids, _ := s.AddPages(session.ID, []Image{{Data: []byte("a")}})

	if err := s.RejectPage(ids[0]); !errors.Is(err, ErrConflict) {
		t.Errorf("reject pending page: got %v", err)
	}
	if _, err := s.ConfirmPage(ids[0], "Lin", nil); !errors.Is(err, ErrConflict) {
		t.Errorf("confirm pending page: got %v", err)
	}
	if _, err := s.StartOCR(ids[0]); err != nil {
		t.Fatalf("StartOCR: %v", err)
	}
	if _, err := s.StartOCR(ids[0]); !errors.Is(err, ErrConflict) {
		t.Errorf("second StartOCR: got %v", err)
	}
	if err := s.CompleteOCR(ids[0], models.PageTypeUnknown, nil, ""); err != nil {
		t.Fatalf("CompleteOCR: %v", err)
	}

	snapshot, _ := s.Status(session.ID)
	if snapshot.Completed != 1 {
		t.Errorf("completed = %d, want 1", snapshot.Completed)
	}
	if snapshot.Pages[0].HasExtraction() {
		t.Error("unreadable page should have no extraction")
	}

	if err := s.RejectPage(ids[0]); err != nil {
		t.Fatalf("RejectPage: %v", err)
	}
	rec, _ := s.Page(ids[0])
	if rec.Status != models.PageStatusRejected || rec.HasImage || rec.Image.Data != nil {
		t.Errorf("rejected page kept state: %+v", rec.Page)
	}
	if err := s.RejectPage(404); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown page: got %v", err)
	}
}

func TestConfirmBasicInfoSetsPatient(t *testing.T) {
	s := New()
	session := s.CreateSession("Lin")
	id := readyPage(t, s, session.ID, models.PageTypeBasicInfo, `{"name":"陳小明","id_number":"A123456789"}`)

	page, err := s.ConfirmPage(id, "Lin", json.RawMessage(`{"id_number":"B223456789"}`))
	if err != nil {
		t.Fatalf("ConfirmPage: %v", err)
	}
	if page.Status != models.PageStatusConfirmed || page.HasImage {
		t.Errorf("page = %+v", page)
	}

	info, _ := models.DecodeBasicInfo(page.Extracted)
	if info.IDNumber != "B223456789" || info.Name != "陳小明" {
		t.Errorf("merged info = %+v", info)
	}
	got, _ := s.Session(session.ID)
	if got.PatientID != "B223456789" {
		t.Errorf("session patient = %q", got.PatientID)
	}

	rec, _ := s.Page(id)
	if rec.ConfirmedBy != "Lin" || string(rec.Corrections) != `{"id_number":"B223456789"}` {
		t.Errorf("record = %+v", rec)
	}
}

func TestConfirmUpsertsRecordsPerVisit(t *testing.T) {
	s := New()
	session := s.CreateSession("Lin")
	card := readyPage(t, s, session.ID, models.PageTypeBasicInfo, `{"name":"陳小明","id_number":"A123456789"}`)
	if _, err := s.ConfirmPage(card, "Lin", nil); err != nil {
		t.Fatalf("confirm card: %v", err)
	}

	first := readyPage(t, s, session.ID, models.PageTypeParentRecord,
		`{"age_stage":2,"visit_number":2,"record_date":"2024/03/05","checklist_items":[],"parent_notes":null}`)
	if _, err := s.ConfirmPage(first, "Lin", nil); err != nil {
		t.Fatalf("confirm first: %v", err)
	}
	second := readyPage(t, s, session.ID, models.PageTypeParentRecord,
		`{"age_stage":2,"visit_number":2,"record_date":"2024-03-06","checklist_items":[],"parent_notes":null}`)
	if _, err := s.ConfirmPage(second, "Lin", json.RawMessage(`{"parent_notes":"睡眠正常"}`)); err != nil {
		t.Fatalf("confirm second: %v", err)
	}
	he := readyPage(t, s, session.ID, models.PageTypeHealthEducation,
		`{"age_stage":1,"visit_number":1,"guidance_date":"2024-01-02","parent_assessment":[],"doctor_guidance":[],"hospital_code":"","doctor_name":""}`)
	if _, err := s.ConfirmPage(he, "Lin", json.RawMessage(`{"hospital_code":"0101090517","doctor_name":"王醫師"}`)); err != nil {
		t.Fatalf("confirm health education: %v", err)
	}

	parents, education := s.Records("A123456789")
	if len(parents) != 1 {
		t.Fatalf("parent records = %d, want 1", len(parents))
	}
	if parents[0].RecordDate != "2024-03-06" || parents[0].ParentNotes == nil || *parents[0].ParentNotes != "睡眠正常" {
		t.Errorf("upserted record = %+v", parents[0])
	}
	if len(education) != 1 || education[0].DoctorName != "王醫師" || education[0].HospitalCode != "0101090517" {
		t.Errorf("health education = %+v", education)
	}
}

func TestConfirmWithoutPatientStoresNoRecord(t *testing.T) {
	s := New()
	session := s.CreateSession("Lin")
	id := readyPage(t, s, session.ID, models.PageTypeParentRecord, `{"visit_number":1,"checklist_items":[]}`)
	if _, err := s.ConfirmPage(id, "Lin", nil); err != nil {
		t.Fatalf("ConfirmPage: %v", err)
	}
	parents, education := s.Records("")
	if len(parents) != 0 || len(education) != 0 {
		t.Errorf("records stored without a patient: %v %v", parents, education)
	}
}

func TestMergeCorrections(t *testing.T) {
	tests := []struct {
		name        string
		extracted   string
		corrections string
		want        string
		wantErr     bool
	}{
		{name: "no corrections", extracted: `{"a":1}`, corrections: "", want: `{"a":1}`},
		{name: "null corrections", extracted: `{"a":1}`, corrections: "null", want: `{"a":1}`},
		{name: "overlay", extracted: `{"a":1,"b":2}`, corrections: `{"b":3}`, want: `{"a":1,"b":3}`},
		{name: "missing extraction", extracted: "", corrections: `{"b":3}`, want: `{"b":3}`},
		{name: "array extraction replaced", extracted: `[1]`, corrections: `{"b":3}`, want: `{"b":3}`},
		{name: "non-object corrections", extracted: `{"a":1}`, corrections: `[1]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mergeCorrections(json.RawMessage(tt.extracted), json.RawMessage(tt.corrections))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSearchPatients(t *testing.T) {
	s := New()
	s.SetPatients([]models.PatientRecord{
		{ID: "A123456789", Name: "陳小明", Sex: "M"},
		{ID: "B223456789", Name: "陳大華", Sex: "F"},
		{ID: "C123456789", Name: "林美玲", Sex: "F"},
	})

	tests := []struct {
		name  string
		query string
		want  []string
		found bool
	}{
		{name: "blank", query: "  ", want: nil},
		{name: "id hit", query: "a123456789", want: []string{"A123456789"}, found: true},
		{name: "id miss", query: "Z999999999", want: nil},
		{name: "name substring sorted", query: "陳", want: []string{"B223456789", "A123456789"}},
		{name: "name miss", query: "王", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.SearchPatients(tt.query)
			if got == nil {
				t.Fatal("results must be a non-nil slice")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d results, want %d", len(got), len(tt.want))
			}
			for i, p := range got {
				if p.ID != tt.want[i] {
					t.Errorf("result %d = %s, want %s", i, p.ID, tt.want[i])
				}
				if tt.found && (p.Found == nil || !*p.Found) {
					t.Errorf("id lookup should mark found")
				}
			}
		})
	}
}

func TestLoadPatients(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patients.yaml")
	content := `patients:
  - mpersonid: a123456789
    name: 陳小明
    sex: M
    birth_date: 2023/05/01
  - name: 無身分證
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	s := New()
	n, err := s.LoadPatients(path)
	if err != nil {
		t.Fatalf("LoadPatients: %v", err)
	}
	if n != 1 {
		t.Fatalf("loaded %d patients, want 1", n)
	}
	p, ok := s.Patient("A123456789")
	if !ok || p.BirthDate != "2023-05-01" || p.Name != "陳小明" {
		t.Errorf("patient = %+v ok=%v", p, ok)
	}

	if _, err := s.LoadPatients(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
