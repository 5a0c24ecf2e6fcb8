// Package outbound is the rate-limited send queue: it admits send
// requests, enforces suppression, idempotency and the daily cap, and
// dispatches admitted messages to the gateway.
package outbound

import "errors"

var (
	// ErrSuppressed rejects a send to a suppressed address. Expected
	// control flow, never retried.
	ErrSuppressed = errors.New("destination suppressed")
	// ErrDuplicateTouch rejects a second live touch for the same (lead,
	// touch number). A no-op for the caller, not an alarm.
	ErrDuplicateTouch = errors.New("duplicate touch")
	// ErrDuplicateReply rejects a second live dispatch for the same reply
	// event. Redelivered queue tasks hit this, not the recipient's inbox.
	ErrDuplicateReply = errors.New("duplicate reply send")
	// ErrRateLimited rejects a send past the daily cap. The request is
	// requeued by natural rescheduling, never dropped.
	ErrRateLimited = errors.New("daily send limit reached")
	// ErrSendFailed marks a gateway failure. The touch is recorded as
	// failed and the lead stays actionable next cycle.
	ErrSendFailed = errors.New("send failed")
	// ErrLintRejected rejects content that failed the pre-send linter.
	ErrLintRejected = errors.New("content failed lint")
)
