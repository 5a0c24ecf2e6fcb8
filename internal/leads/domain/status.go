// Package domain provides core business rules for the leads bounded context.
package domain

import "errors"

// MaxTouches is the length of the outbound sequence. A lead whose sequence
// is exhausted without a reply moves to StatusLost.
const MaxTouches = 5

// Status is the lifecycle status of a lead.
type Status string

const (
	StatusNew              Status = "new"
	StatusEnriching        Status = "enriching"
	StatusQualified        Status = "qualified"
	StatusDisqualified     Status = "disqualified"
	StatusTouchSent        Status = "touch_sent"
	StatusReplied          Status = "replied"
	StatusObjectionHandled Status = "objection_handled"
	StatusBooked           Status = "booked"
	StatusLost             Status = "lost"
	StatusSuppressed       Status = "suppressed"
)

// ErrInvalidTransition is returned when a requested status change is not in
// the transition table or fails a guard.
var ErrInvalidTransition = errors.New("invalid status transition")

var terminalStatuses = map[Status]bool{
	StatusDisqualified: true,
	StatusBooked:       true,
	StatusLost:         true,
	StatusSuppressed:   true,
}

// transitions lists the allowed next statuses for each status. Suppression
// is reachable from every non-terminal status and handled separately in
// CanTransition.
var transitions = map[Status][]Status{
	StatusNew:              {StatusEnriching, StatusQualified, StatusDisqualified},
	StatusEnriching:        {StatusQualified, StatusDisqualified},
	StatusQualified:        {StatusTouchSent, StatusDisqualified},
	StatusTouchSent:        {StatusTouchSent, StatusReplied, StatusLost},
	StatusReplied:          {StatusObjectionHandled, StatusBooked, StatusLost},
	StatusObjectionHandled: {StatusReplied, StatusBooked, StatusLost},
}

var knownStatuses = map[Status]struct{}{
	StatusNew:              {},
	StatusEnriching:        {},
	StatusQualified:        {},
	StatusDisqualified:     {},
	StatusTouchSent:        {},
	StatusReplied:          {},
	StatusObjectionHandled: {},
	StatusBooked:           {},
	StatusLost:             {},
	StatusSuppressed:       {},
}

// IsKnownStatus reports whether the string is a recognised lead status.
func IsKnownStatus(status string) bool {
	_, ok := knownStatuses[Status(status)]
	return ok
}

// IsTerminal returns true when no further transitions are allowed.
func IsTerminal(status Status) bool {
	return terminalStatuses[status]
}

// CanTransition reports whether the status change is in the transition
// table. touchNumber is the lead's current touch number and guards the
// touch_sent self-transition: a sixth touch is never allowed.
func CanTransition(from, to Status, touchNumber int) bool {
	if terminalStatuses[from] {
		return false
	}
	if to == StatusSuppressed {
		return true
	}
	if from == StatusTouchSent && to == StatusTouchSent && touchNumber >= MaxTouches {
		return false
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
