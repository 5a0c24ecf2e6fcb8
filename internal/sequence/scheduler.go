package sequence

import (
	"time"

	"outreach_backend/internal/leads/domain"
	"outreach_backend/platform/config"
)

// ActionKind is what the scheduler wants done with a due lead.
type ActionKind string

const (
	// ActionNone means the lead is not due or is waiting on a human.
	ActionNone ActionKind = "none"
	// ActionSendTouch means the next touch should be dispatched now.
	ActionSendTouch ActionKind = "send_touch"
	// ActionDefer means the lead is due but outside the send window. It
	// stays due and is revisited next cycle, never dropped.
	ActionDefer ActionKind = "defer"
	// ActionMarkLost means the sequence is exhausted without a reply.
	ActionMarkLost ActionKind = "mark_lost"
)

// Action is one scheduling decision.
type Action struct {
	Kind        ActionKind
	TouchNumber int
}

// Scheduler computes due actions from the timing table and send window.
type Scheduler struct {
	timing       Timing
	windowStart  int
	windowEnd    int
	weekdaysOnly bool
	lostAfter    time.Duration
}

func NewScheduler(timing Timing, cfg config.SequenceConfig) *Scheduler {
	lostAfter := cfg.GetLostAfter()
	if lostAfter <= 0 {
		lostAfter = 14 * 24 * time.Hour
	}
	return &Scheduler{
		timing:       timing,
		windowStart:  cfg.GetSendWindowStart(),
		windowEnd:    cfg.GetSendWindowEnd(),
		weekdaysOnly: cfg.GetSendWeekdaysOnly(),
		lostAfter:    lostAfter,
	}
}

// Plan decides the action for a lead at rest. Leads in statuses that wait
// on a human (replied, objection_handled) or terminal statuses are never
// scheduled.
func (s *Scheduler) Plan(lead domain.Lead, now time.Time) Action {
	if domain.IsTerminal(lead.Status) {
		return Action{Kind: ActionNone}
	}
	if lead.NextActionAt == nil || lead.NextActionAt.After(now) {
		return Action{Kind: ActionNone}
	}

	switch lead.Status {
	case domain.StatusQualified, domain.StatusTouchSent:
	default:
		return Action{Kind: ActionNone}
	}

	if lead.CurrentTouchNumber >= s.timing.MaxTouch() {
		return Action{Kind: ActionMarkLost}
	}

	if !s.InWindow(now) {
		return Action{Kind: ActionDefer}
	}

	return Action{Kind: ActionSendTouch, TouchNumber: lead.CurrentTouchNumber + 1}
}

// NextActionAt computes when the given touch becomes due, anchored at the
// previous touch's send time (or lead creation for touch 1).
func (s *Scheduler) NextActionAt(touchNumber int, anchor time.Time) (time.Time, bool) {
	wait, ok := s.timing[touchNumber]
	if !ok {
		return time.Time{}, false
	}
	return anchor.Add(wait), true
}

// AfterSend returns the due time for the touch after the one just sent.
// After the final touch it returns the exhaustion checkpoint instead: the
// lead must stay listed so a later cycle can mark it lost once the reply
// grace wait has passed without an answer.
func (s *Scheduler) AfterSend(sentTouch int, sentAt time.Time) time.Time {
	if due, ok := s.NextActionAt(sentTouch+1, sentAt); ok {
		return due
	}
	return sentAt.Add(s.lostAfter)
}

// InWindow reports whether dispatching is allowed at the given time.
func (s *Scheduler) InWindow(now time.Time) bool {
	if s.weekdaysOnly {
		switch now.Weekday() {
		case time.Saturday, time.Sunday:
			return false
		}
	}
	hour := now.Hour()
	return hour >= s.windowStart && hour < s.windowEnd
}
