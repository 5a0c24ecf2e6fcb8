package sequence

import (
	"testing"
	"time"

	"outreach_backend/internal/leads/domain"
)

type fakeSequenceConfig struct {
	start        int
	end          int
	weekdaysOnly bool
	lostAfter    time.Duration
}

func (f fakeSequenceConfig) GetTimingTablePath() string  { return "" }
func (f fakeSequenceConfig) GetSendWindowStart() int     { return f.start }
func (f fakeSequenceConfig) GetSendWindowEnd() int       { return f.end }
func (f fakeSequenceConfig) GetSendWeekdaysOnly() bool   { return f.weekdaysOnly }
func (f fakeSequenceConfig) GetLostAfter() time.Duration { return f.lostAfter }

func allDay() fakeSequenceConfig { return fakeSequenceConfig{start: 0, end: 24} }

func at(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatal(err)
	}
	return parsed
}

// Three-touch cadence: touch 1 immediately, touch 2 after 48h, touch 3 after 96h.
func threeTouchTiming() Timing {
	return Timing{1: 0, 2: 48 * time.Hour, 3: 96 * time.Hour}
}

func TestPlanFollowsCadence(t *testing.T) {
	scheduler := NewScheduler(threeTouchTiming(), allDay())
	createdAt := at(t, "2026-03-02T10:00:00Z")

	lead := domain.Lead{
		Status:             domain.StatusQualified,
		CurrentTouchNumber: 0,
		NextActionAt:       &createdAt,
		CreatedAt:          createdAt,
	}

	// Touch 1 is due immediately at creation.
	action := scheduler.Plan(lead, createdAt)
	if action.Kind != ActionSendTouch || action.TouchNumber != 1 {
		t.Fatalf("at T0 got %+v, want send touch 1", action)
	}

	// After touch 1 the lead waits 48h for touch 2.
	due := scheduler.AfterSend(1, createdAt)
	if want := createdAt.Add(48 * time.Hour); !due.Equal(want) {
		t.Fatalf("touch 2 due at %v, want %v", due, want)
	}

	lead.Status = domain.StatusTouchSent
	lead.CurrentTouchNumber = 1
	lead.NextActionAt = &due

	// At T0+47h nothing dispatches.
	if action := scheduler.Plan(lead, createdAt.Add(47*time.Hour)); action.Kind != ActionNone {
		t.Fatalf("at T0+47h got %+v, want none", action)
	}

	// At T0+48h touch 2 dispatches.
	action = scheduler.Plan(lead, createdAt.Add(48*time.Hour))
	if action.Kind != ActionSendTouch || action.TouchNumber != 2 {
		t.Fatalf("at T0+48h got %+v, want send touch 2", action)
	}
}

// The final touch must leave the lead listed: AfterSend hands back the
// lost checkpoint, and a Plan at that time decides mark-lost.
func TestAfterFinalTouchSchedulesLostCheck(t *testing.T) {
	cfg := allDay()
	cfg.lostAfter = 7 * 24 * time.Hour
	scheduler := NewScheduler(threeTouchTiming(), cfg)
	sentAt := at(t, "2026-03-02T10:00:00Z")

	due := scheduler.AfterSend(3, sentAt)
	if want := sentAt.Add(7 * 24 * time.Hour); !due.Equal(want) {
		t.Fatalf("lost check due at %v, want %v", due, want)
	}

	lead := domain.Lead{
		Status:             domain.StatusTouchSent,
		CurrentTouchNumber: 3,
		NextActionAt:       &due,
	}
	if action := scheduler.Plan(lead, due); action.Kind != ActionMarkLost {
		t.Fatalf("at lost check got %+v, want mark lost", action)
	}
}

func TestPlanExhaustedSequence(t *testing.T) {
	scheduler := NewScheduler(threeTouchTiming(), allDay())
	due := at(t, "2026-03-02T10:00:00Z")

	lead := domain.Lead{
		Status:             domain.StatusTouchSent,
		CurrentTouchNumber: 3,
		NextActionAt:       &due,
	}

	action := scheduler.Plan(lead, due.Add(time.Hour))
	if action.Kind != ActionMarkLost {
		t.Fatalf("got %+v, want mark lost", action)
	}
}

func TestPlanDefersOutsideWindow(t *testing.T) {
	scheduler := NewScheduler(threeTouchTiming(), fakeSequenceConfig{start: 8, end: 18, weekdaysOnly: true})
	due := at(t, "2026-03-02T03:00:00Z") // Monday 03:00

	lead := domain.Lead{
		Status:             domain.StatusQualified,
		CurrentTouchNumber: 0,
		NextActionAt:       &due,
	}

	// Due at 03:00: outside the window, deferred not dropped.
	if action := scheduler.Plan(lead, due); action.Kind != ActionDefer {
		t.Fatalf("at 03:00 got %+v, want defer", action)
	}

	// Same lead at 09:00 dispatches.
	if action := scheduler.Plan(lead, due.Add(6*time.Hour)); action.Kind != ActionSendTouch {
		t.Fatalf("at 09:00 got %+v, want send touch", action)
	}

	// Saturday is blocked when weekdays-only is set.
	saturday := at(t, "2026-03-07T10:00:00Z")
	if action := scheduler.Plan(lead, saturday); action.Kind != ActionDefer {
		t.Fatalf("on Saturday got %+v, want defer", action)
	}
}

func TestPlanIgnoresLeadsAwaitingHuman(t *testing.T) {
	scheduler := NewScheduler(threeTouchTiming(), allDay())
	due := at(t, "2026-03-02T10:00:00Z")

	for _, status := range []domain.Status{domain.StatusReplied, domain.StatusObjectionHandled, domain.StatusNew, domain.StatusEnriching} {
		lead := domain.Lead{Status: status, CurrentTouchNumber: 1, NextActionAt: &due}
		if action := scheduler.Plan(lead, due.Add(time.Hour)); action.Kind != ActionNone {
			t.Errorf("status %s: got %+v, want none", status, action)
		}
	}

	// Terminal statuses are never scheduled even with a stale due time.
	lead := domain.Lead{Status: domain.StatusLost, CurrentTouchNumber: 5, NextActionAt: &due}
	if action := scheduler.Plan(lead, due.Add(time.Hour)); action.Kind != ActionNone {
		t.Errorf("terminal lead: got %+v, want none", action)
	}
}

func TestDefaultTiming(t *testing.T) {
	timing := DefaultTiming()
	if timing.MaxTouch() != 5 {
		t.Fatalf("MaxTouch() = %d, want 5", timing.MaxTouch())
	}
	if timing[1] != 0 {
		t.Errorf("touch 1 wait = %v, want immediate", timing[1])
	}
	if timing[5] != 720*time.Hour {
		t.Errorf("touch 5 wait = %v, want 720h", timing[5])
	}
}
