package storage

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/childhealth/handbookscan/internal/models"
)

const searchLimit = 20

type directoryFile struct {
	Patients []struct {
		ID          string `yaml:"mpersonid"`
		Name        string `yaml:"name"`
		Sex         string `yaml:"sex"`
		BirthDate   string `yaml:"birth_date"`
		PhoneHome   string `yaml:"phone_home"`
		PhoneMobile string `yaml:"phone_mobile"`
	} `yaml:"patients"`
}

// LoadPatients replaces the patient directory with the contents of a YAML file
func (s *Store) LoadPatients(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read patient directory: %w", err)
	}

	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse patient directory: %w", err)
	}

	patients := make([]models.PatientRecord, 0, len(file.Patients))
	for _, p := range file.Patients {
		if p.ID == "" {
			continue
		}
		patients = append(patients, models.PatientRecord{
			ID:          strings.ToUpper(strings.TrimSpace(p.ID)),
			Name:        strings.TrimSpace(p.Name),
			Sex:         p.Sex,
			BirthDate:   normalizeDate(p.BirthDate),
			PhoneHome:   p.PhoneHome,
			PhoneMobile: p.PhoneMobile,
		})
	}
	s.SetPatients(patients)
	return len(patients), nil
}

// SetPatients replaces the patient directory
func (s *Store) SetPatients(patients []models.PatientRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients = append([]models.PatientRecord(nil), patients...)
}

// Patient looks a patient up by national ID
func (s *Store) Patient(id string) (models.PatientRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id = strings.ToUpper(strings.TrimSpace(id))
	for _, p := range s.patients {
		if p.ID == id {
			return p, true
		}
	}
	return models.PatientRecord{}, false
}

// SearchPatients treats a ten character query starting with a letter as a
// national ID; anything else is a substring match on the name.
func (s *Store) SearchPatients(query string) []models.PatientRecord {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.PatientRecord{}
	}

	if looksLikeID(query) {
		p, ok := s.Patient(query)
		if !ok {
			return []models.PatientRecord{}
		}
		found := true
		p.Found = &found
		return []models.PatientRecord{p}
	}

	s.mu.RLock()
	results := make([]models.PatientRecord, 0)
	for _, p := range s.patients {
		if strings.Contains(p.Name, query) {
			results = append(results, p)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	if len(results) > searchLimit {
		results = results[:searchLimit]
	}
	return results
}

func looksLikeID(q string) bool {
	r := []rune(q)
	return len(r) == 10 && unicode.IsLetter(r[0]) && r[0] < unicode.MaxASCII
}

// normalizeDate accepts YYYY-MM-DD or YYYY/MM/DD. Anything else is kept as
// written so the reviewer's text is not lost.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "2006/01/02", "2006/1/2"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
