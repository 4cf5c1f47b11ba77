package poller

import (
	"fmt"

	"github.com/childhealth/handbookscan/internal/models"
)

// Progress counts handbook pages that have an OCR result
type Progress struct {
	Completed int
	Total     int
}

// Done reports whether every handbook page has been processed. An empty
// session is never done.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Completed == p.Total
}

func (p Progress) String() string {
	return fmt.Sprintf("%d/%d", p.Completed, p.Total)
}

// Change is one page whose status differs from the previous snapshot
type Change struct {
	PageID int64
	From   models.PageStatus
	To     models.PageStatus
}

// Valid reports whether the change moves forward along the status chain.
// A page seen for the first time has no From and is always valid.
func (c Change) Valid() bool {
	if c.From == "" {
		return c.To.Valid()
	}
	return models.Precedes(c.From, c.To)
}

// Tick is everything derived from a single status snapshot
type Tick struct {
	Snapshot *models.StatusSnapshot
	// Queue is the display list in server order
	Queue    []models.Page
	Progress Progress
	// Next is the first page awaiting review, nil when there is none
	Next    *models.Page
	Changes []Change
}

// Evaluate derives queue, progress and the next review candidate from one
// snapshot. prev holds the statuses seen on the previous tick; exclude may
// be nil.
func Evaluate(snapshot *models.StatusSnapshot, prev map[int64]models.PageStatus, exclude func(pageID int64) bool) Tick {
	tick := Tick{Snapshot: snapshot}
	if snapshot == nil {
		return tick
	}

	for _, page := range snapshot.Pages {
		if from, ok := prev[page.ID]; !ok || from != page.Status {
			tick.Changes = append(tick.Changes, Change{PageID: page.ID, From: from, To: page.Status})
		}

		if page.Type == models.PageTypeBasicInfo {
			if page.Status == models.PageStatusConfirmed {
				tick.Queue = append(tick.Queue, page)
			}
			continue
		}

		tick.Queue = append(tick.Queue, page)
		tick.Progress.Total++
		if page.Status == models.PageStatusOCRComplete || page.Status == models.PageStatusConfirmed {
			tick.Progress.Completed++
		}
		if tick.Next == nil && page.Status == models.PageStatusOCRComplete {
			if exclude == nil || !exclude(page.ID) {
				next := page
				tick.Next = &next
			}
		}
	}
	return tick
}

func statuses(snapshot *models.StatusSnapshot) map[int64]models.PageStatus {
	out := make(map[int64]models.PageStatus)
	if snapshot == nil {
		return out
	}
	for _, page := range snapshot.Pages {
		out[page.ID] = page.Status
	}
	return out
}
