package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/childhealth/handbookscan/internal/models"
)

func page(id int64, order int, typ models.PageType, status models.PageStatus) models.Page {
	return models.Page{ID: id, Order: order, Type: typ, Status: status}
}

func snapshot(pages ...models.Page) *models.StatusSnapshot {
	return &models.StatusSnapshot{SessionID: 1, Status: models.SessionStatusOpen, Pages: pages}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		snap      *models.StatusSnapshot
		exclude   func(int64) bool
		wantQueue []int64
		wantProg  Progress
		wantNext  int64
	}{
		{
			name: "basic info excluded until confirmed",
			snap: snapshot(
				page(1, 1, models.PageTypeBasicInfo, models.PageStatusOCRComplete),
				page(2, 2, models.PageTypeParentRecord, models.PageStatusPending),
			),
			wantQueue: []int64{2},
			wantProg:  Progress{Completed: 0, Total: 1},
		},
		{
			name: "confirmed basic info shown but not counted",
			snap: snapshot(
				page(1, 1, models.PageTypeBasicInfo, models.PageStatusConfirmed),
				page(2, 2, models.PageTypeParentRecord, models.PageStatusOCRComplete),
			),
			wantQueue: []int64{1, 2},
			wantProg:  Progress{Completed: 1, Total: 1},
			wantNext:  2,
		},
		{
			name: "first ocr_complete by order",
			snap: snapshot(
				page(3, 1, models.PageTypeParentRecord, models.PageStatusConfirmed),
				page(4, 2, models.PageTypeHealthEducation, models.PageStatusOCRComplete),
				page(5, 3, models.PageTypeParentRecord, models.PageStatusOCRComplete),
			),
			wantQueue: []int64{3, 4, 5},
			wantProg:  Progress{Completed: 3, Total: 3},
			wantNext:  4,
		},
		{
			name: "excluded page skipped",
			snap: snapshot(
				page(4, 1, models.PageTypeHealthEducation, models.PageStatusOCRComplete),
				page(5, 2, models.PageTypeParentRecord, models.PageStatusOCRComplete),
			),
			exclude:   func(id int64) bool { return id == 4 },
			wantQueue: []int64{4, 5},
			wantProg:  Progress{Completed: 2, Total: 2},
			wantNext:  5,
		},
		{
			name: "rejected counts toward total only",
			snap: snapshot(
				page(6, 1, models.PageTypeUnknown, models.PageStatusRejected),
				page(7, 2, "", models.PageStatusOCRProcessing),
			),
			wantQueue: []int64{6, 7},
			wantProg:  Progress{Completed: 0, Total: 2},
		},
		{
			name:     "empty session",
			snap:     snapshot(),
			wantProg: Progress{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tick := Evaluate(tt.snap, nil, tt.exclude)

			var ids []int64
			for _, p := range tick.Queue {
				ids = append(ids, p.ID)
			}
			if len(ids) != len(tt.wantQueue) {
				t.Fatalf("queue = %v, want %v", ids, tt.wantQueue)
			}
			for i := range ids {
				if ids[i] != tt.wantQueue[i] {
					t.Fatalf("queue = %v, want %v", ids, tt.wantQueue)
				}
			}
			if tick.Progress != tt.wantProg {
				t.Errorf("progress = %+v, want %+v", tick.Progress, tt.wantProg)
			}
			switch {
			case tt.wantNext == 0 && tick.Next != nil:
				t.Errorf("expected no next page, got %d", tick.Next.ID)
			case tt.wantNext != 0 && (tick.Next == nil || tick.Next.ID != tt.wantNext):
				t.Errorf("next = %v, want %d", tick.Next, tt.wantNext)
			}
		})
	}
}

func TestEvaluateChanges(t *testing.T) {
	prev := map[int64]models.PageStatus{
		1: models.PageStatusPending,
		2: models.PageStatusConfirmed,
	}
	tick := Evaluate(snapshot(
		page(1, 1, models.PageTypeParentRecord, models.PageStatusOCRComplete),
		page(2, 2, models.PageTypeParentRecord, models.PageStatusPending),
		page(3, 3, models.PageTypeParentRecord, models.PageStatusPending),
	), prev, nil)

	if len(tick.Changes) != 3 {
		t.Fatalf("expected 3 changes, got %+v", tick.Changes)
	}
	if !tick.Changes[0].Valid() {
		t.Error("pending -> ocr_complete skips a state but is forward")
	}
	if tick.Changes[1].Valid() {
		t.Error("confirmed -> pending must be invalid")
	}
	if !tick.Changes[2].Valid() {
		t.Error("a newly seen page is valid")
	}
}

func TestProgressDone(t *testing.T) {
	tests := []struct {
		p    Progress
		want bool
		text string
	}{
		{Progress{0, 0}, false, "0/0"},
		{Progress{0, 3}, false, "0/3"},
		{Progress{1, 3}, false, "1/3"},
		{Progress{3, 3}, true, "3/3"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if tt.p.Done() != tt.want {
				t.Errorf("Done() = %v, want %v", tt.p.Done(), tt.want)
			}
			if tt.p.String() != tt.text {
				t.Errorf("String() = %q, want %q", tt.p.String(), tt.text)
			}
		})
	}
}

// scripted serves snapshots in order and repeats the last one
type scripted struct {
	mu    sync.Mutex
	snaps []*models.StatusSnapshot
	errs  []error
	calls int
}

func (s *scripted) fetch(ctx context.Context) (*models.StatusSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.snaps) {
		i = len(s.snaps) - 1
	}
	return s.snaps[i], nil
}

func (s *scripted) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recorder struct {
	mu    sync.Mutex
	ticks []Tick
}

func (r *recorder) HandleTick(t Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, t)
}

func (r *recorder) progress() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, t := range r.ticks {
		out = append(out, t.Progress.String())
	}
	return out
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func threePages(statuses ...models.PageStatus) *models.StatusSnapshot {
	var pages []models.Page
	for i, s := range statuses {
		pages = append(pages, page(int64(i+1), i+1, models.PageTypeParentRecord, s))
	}
	return snapshot(pages...)
}

func TestPollerStopsWhenAllPagesProcessed(t *testing.T) {
	src := &scripted{snaps: []*models.StatusSnapshot{
		threePages(models.PageStatusPending, models.PageStatusOCRProcessing, models.PageStatusPending),
		threePages(models.PageStatusOCRComplete, models.PageStatusOCRProcessing, models.PageStatusPending),
		threePages(models.PageStatusOCRComplete, models.PageStatusOCRComplete, models.PageStatusOCRComplete),
	}}
	rec := &recorder{}
	p := New(src.fetch, rec, WithInterval(time.Millisecond))

	p.Activate()
	waitUntil(t, func() bool { return !p.Running() })

	got := rec.progress()
	want := []string{"0/3", "1/3", "3/3"}
	if len(got) != len(want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress = %v, want %v", got, want)
		}
	}

	time.Sleep(10 * time.Millisecond)
	if src.count() != 3 {
		t.Errorf("expected polling to stop after 3 fetches, got %d", src.count())
	}
}

func TestPollerRestartsOnActivate(t *testing.T) {
	src := &scripted{snaps: []*models.StatusSnapshot{
		threePages(models.PageStatusOCRComplete),
	}}
	rec := &recorder{}
	p := New(src.fetch, rec, WithInterval(time.Millisecond))

	p.Activate()
	waitUntil(t, func() bool { return !p.Running() })
	before := src.count()

	p.Activate()
	waitUntil(t, func() bool { return !p.Running() })
	if src.count() <= before {
		t.Error("expected activation to fetch again")
	}
}

func TestPollerKeepsRunningAfterFetchError(t *testing.T) {
	src := &scripted{
		snaps: []*models.StatusSnapshot{nil, nil, threePages(models.PageStatusOCRComplete)},
		errs:  []error{errors.New("connection refused"), errors.New("connection refused")},
	}
	rec := &recorder{}
	p := New(src.fetch, rec, WithInterval(time.Millisecond))

	p.Activate()
	waitUntil(t, func() bool { return !p.Running() })

	if src.count() != 3 {
		t.Errorf("expected 3 fetches, got %d", src.count())
	}
	if got := rec.progress(); len(got) != 1 || got[0] != "1/1" {
		t.Errorf("expected a single successful tick, got %v", got)
	}
}

func TestPollerActivateDuringFinalTickRearms(t *testing.T) {
	src := &scripted{snaps: []*models.StatusSnapshot{
		threePages(models.PageStatusOCRComplete),
		threePages(models.PageStatusOCRComplete, models.PageStatusPending),
		threePages(models.PageStatusOCRComplete, models.PageStatusOCRComplete),
	}}

	var p *Poller
	var once sync.Once
	rec := &recorder{}
	handler := HandlerFunc(func(t Tick) {
		rec.HandleTick(t)
		once.Do(func() { p.Activate() })
	})
	p = New(src.fetch, handler, WithInterval(time.Millisecond))

	p.Activate()
	waitUntil(t, func() bool { return !p.Running() })

	got := rec.progress()
	if len(got) != 3 || got[1] != "1/2" || got[2] != "2/2" {
		t.Errorf("expected loop to continue after re-arm, got %v", got)
	}
}

func TestPollerCancelIsIdempotent(t *testing.T) {
	src := &scripted{snaps: []*models.StatusSnapshot{threePages(models.PageStatusPending)}}
	p := New(src.fetch, &recorder{}, WithInterval(time.Millisecond))

	p.Cancel()
	p.Activate()
	p.Activate()
	waitUntil(t, func() bool { return src.count() > 1 })
	p.Cancel()
	p.Cancel()

	if p.Running() {
		t.Fatal("expected poller to be stopped")
	}
	n := src.count()
	time.Sleep(10 * time.Millisecond)
	if src.count() != n {
		t.Error("fetches continued after Cancel")
	}
}

func TestPollerRefreshUsesExclude(t *testing.T) {
	src := &scripted{snaps: []*models.StatusSnapshot{
		threePages(models.PageStatusOCRComplete, models.PageStatusOCRComplete),
	}}
	p := New(src.fetch, nil, WithExclude(func(id int64) bool { return id == 1 }))

	tick, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tick.Next == nil || tick.Next.ID != 2 {
		t.Errorf("expected page 2 next, got %v", tick.Next)
	}
	if p.Running() {
		t.Error("Refresh must not start the schedule")
	}
}

func TestWaitForPage(t *testing.T) {
	tests := []struct {
		name    string
		snaps   []*models.StatusSnapshot
		wantErr error
	}{
		{
			name: "completes on third attempt",
			snaps: []*models.StatusSnapshot{
				threePages(models.PageStatusPending),
				threePages(models.PageStatusOCRProcessing),
				threePages(models.PageStatusOCRComplete),
			},
		},
		{
			name:    "times out",
			snaps:   []*models.StatusSnapshot{threePages(models.PageStatusOCRProcessing)},
			wantErr: ErrOCRTimedOut,
		},
		{
			name:    "rejected",
			snaps:   []*models.StatusSnapshot{threePages(models.PageStatusRejected)},
			wantErr: ErrPageRejected,
		},
		{
			name:    "page missing",
			snaps:   []*models.StatusSnapshot{snapshot()},
			wantErr: ErrOCRTimedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &scripted{snaps: tt.snaps}
			got, err := WaitForPage(context.Background(), src.fetch, 1, 5, time.Millisecond)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Status != models.PageStatusOCRComplete {
				t.Errorf("unexpected status %s", got.Status)
			}
		})
	}
}

func TestWaitForPageHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &scripted{snaps: []*models.StatusSnapshot{threePages(models.PageStatusPending)}}
	_, err := WaitForPage(ctx, src.fetch, 1, 5, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
