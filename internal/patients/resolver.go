// Package patients looks up patient records for the identity step.
package patients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/childhealth/handbookscan/internal/models"
)

// ErrLookupFailed wraps every failure of the lookup service itself
var ErrLookupFailed = errors.New("patient lookup failed")

// Searcher is the remote patient search
type Searcher interface {
	SearchPatients(ctx context.Context, query string) ([]models.PatientRecord, error)
}

// Resolver searches patients by id number or name
type Resolver struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewResolver creates a resolver over a searcher
func NewResolver(searcher Searcher) *Resolver {
	return &Resolver{searcher: searcher, logger: slog.Default()}
}

// Search returns the candidates for query. A blank query sends no request
// and yields nothing. No match is an empty result, not an error.
func (r *Resolver) Search(ctx context.Context, query string) ([]models.PatientRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	results, err := r.searcher.SearchPatients(ctx, query)
	if err != nil {
		r.logger.Warn("patient search failed", "query", query, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	found := make([]models.PatientRecord, 0, len(results))
	for _, p := range results {
		if p.Found != nil && !*p.Found {
			continue
		}
		found = append(found, p)
	}
	r.logger.Debug("patient search", "query", query, "results", len(found))
	return found, nil
}

// Status is which banner the caller should show
type Status int

const (
	Found Status = iota
	NotFound
	Failed
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is a classified search result
type Outcome struct {
	Status   Status
	Patients []models.PatientRecord
	Err      error
}

// Message is the staff-facing banner text
func (o Outcome) Message() string {
	switch o.Status {
	case Found:
		p := o.Patients[0]
		return fmt.Sprintf("找到病患：%s (%s) %s %s", p.Name, p.ID, p.SexLabel(), p.BirthDate)
	case NotFound:
		return "查無此病患，請確認身分證號碼或手動輸入"
	default:
		return "病患查詢失敗，請稍後再試"
	}
}

// Classify turns the result of Search into an Outcome
func Classify(results []models.PatientRecord, err error) Outcome {
	switch {
	case err != nil:
		return Outcome{Status: Failed, Err: err}
	case len(results) == 0:
		return Outcome{Status: NotFound}
	default:
		return Outcome{Status: Found, Patients: results}
	}
}

// Lookup searches and classifies in one call
func (r *Resolver) Lookup(ctx context.Context, query string) Outcome {
	results, err := r.Search(ctx, query)
	return Classify(results, err)
}
