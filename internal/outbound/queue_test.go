package outbound

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"outreach_backend/internal/audit"
	"outreach_backend/internal/leads"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeSuppression struct {
	blocked map[string]bool
}

func (f *fakeSuppression) IsSuppressed(_ context.Context, email string) (bool, error) {
	return f.blocked[email], nil
}

type fakeTouchStore struct {
	mu         sync.Mutex
	touches    map[uuid.UUID]*Touch
	replySends map[uuid.UUID]*ReplySend
}

func newFakeTouchStore() *fakeTouchStore {
	return &fakeTouchStore{
		touches:    make(map[uuid.UUID]*Touch),
		replySends: make(map[uuid.UUID]*ReplySend),
	}
}

func (f *fakeTouchStore) CreatePending(_ context.Context, params CreateTouchParams) (Touch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, touch := range f.touches {
		if touch.LeadID == params.LeadID && touch.TouchNumber == params.TouchNumber && touch.Status != TouchStatusFailed {
			return Touch{}, ErrDuplicateTouch
		}
	}
	touch := Touch{
		ID:          uuid.New(),
		LeadID:      params.LeadID,
		TouchNumber: params.TouchNumber,
		Status:      TouchStatusPending,
		Subject:     params.Subject,
		Body:        params.Body,
	}
	f.touches[touch.ID] = &touch
	return touch, nil
}

func (f *fakeTouchStore) HasLiveTouch(_ context.Context, leadID uuid.UUID, touchNumber int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, touch := range f.touches {
		if touch.LeadID == leadID && touch.TouchNumber == touchNumber && touch.Status != TouchStatusFailed {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTouchStore) MarkSent(_ context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	touch, ok := f.touches[id]
	if !ok {
		return ErrNotFound
	}
	touch.Status = TouchStatusSent
	touch.ProviderMessageID = providerMessageID
	touch.SentAt = &sentAt
	return nil
}

func (f *fakeTouchStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	touch, ok := f.touches[id]
	if !ok {
		return ErrNotFound
	}
	touch.Status = TouchStatusFailed
	touch.FailureReason = reason
	return nil
}

func (f *fakeTouchStore) CreatePendingReply(_ context.Context, replyEventID, leadID uuid.UUID) (ReplySend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, send := range f.replySends {
		if send.ReplyEventID == replyEventID && send.Status != TouchStatusFailed {
			return ReplySend{}, ErrDuplicateReply
		}
	}
	send := ReplySend{
		ID:           uuid.New(),
		ReplyEventID: replyEventID,
		LeadID:       leadID,
		Status:       TouchStatusPending,
	}
	f.replySends[send.ID] = &send
	return send, nil
}

func (f *fakeTouchStore) MarkReplySent(_ context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	send, ok := f.replySends[id]
	if !ok {
		return ErrNotFound
	}
	send.Status = TouchStatusSent
	send.ProviderMessageID = providerMessageID
	send.SentAt = &sentAt
	return nil
}

func (f *fakeTouchStore) MarkReplyFailed(_ context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	send, ok := f.replySends[id]
	if !ok {
		return ErrNotFound
	}
	send.Status = TouchStatusFailed
	send.FailureReason = reason
	return nil
}

func (f *fakeTouchStore) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, touch := range f.touches {
		if touch.Status == TouchStatusSent {
			count++
		}
	}
	return count
}

type fakeCounter struct {
	mu    sync.Mutex
	limit int
	used  map[string]int
}

func newFakeCounter(limit int) *fakeCounter {
	return &fakeCounter{limit: limit, used: make(map[string]int)}
}

func (f *fakeCounter) Reserve(_ context.Context, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := now.UTC().Format("2006-01-02")
	if f.used[day] >= f.limit {
		return ErrRateLimited
	}
	f.used[day]++
	return nil
}

func (f *fakeCounter) Release(_ context.Context, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used[now.UTC().Format("2006-01-02")]--
	return nil
}

type fakeGateway struct {
	mu    sync.Mutex
	fail  bool
	sends []Message
}

func (f *fakeGateway) Send(_ context.Context, msg Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("%w: connection refused", ErrSendFailed)
	}
	f.sends = append(f.sends, msg)
	return fmt.Sprintf("msg-%d", len(f.sends)), nil
}

type fakeMachine struct {
	mu          sync.Mutex
	transitions []domain.Status
}

func (f *fakeMachine) Transition(_ context.Context, _ uuid.UUID, to domain.Status, _ leads.TransitionParams) (domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, to)
	return domain.Lead{Status: to}, nil
}

type fakeAuditor struct {
	mu      sync.Mutex
	entries []audit.AppendParams
}

func (f *fakeAuditor) Append(_ context.Context, params audit.AppendParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, params)
	return nil
}

func (f *fakeAuditor) has(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.Event == event {
			return true
		}
	}
	return false
}

type queueFixture struct {
	queue       *Queue
	suppression *fakeSuppression
	touches     *fakeTouchStore
	counter     *fakeCounter
	gateway     *fakeGateway
	machine     *fakeMachine
	auditor     *fakeAuditor
	now         time.Time
}

func newQueueFixture(t *testing.T, dailyLimit int) *queueFixture {
	t.Helper()
	f := &queueFixture{
		suppression: &fakeSuppression{blocked: make(map[string]bool)},
		touches:     newFakeTouchStore(),
		counter:     newFakeCounter(dailyLimit),
		gateway:     &fakeGateway{},
		machine:     &fakeMachine{},
		auditor:     &fakeAuditor{},
		now:         time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	f.queue = NewQueue(f.suppression, f.touches, f.counter, f.gateway, f.machine, f.auditor, logger.New("development"))
	f.queue.WithClock(func() time.Time { return f.now })
	return f
}

func testLead(email string) domain.Lead {
	return domain.Lead{
		ID:                 uuid.New(),
		Email:              email,
		CompanyName:        "Acme Surf Co",
		Status:             domain.StatusQualified,
		CurrentTouchNumber: 0,
	}
}

func touchRequest(lead domain.Lead, number int) TouchRequest {
	return TouchRequest{
		Lead:        lead,
		TouchNumber: number,
		Subject:     "Quick question",
		Body:        "Saw your store, thought a couple of lines could fit.",
	}
}

func TestSendTouchHappyPath(t *testing.T) {
	f := newQueueFixture(t, 10)
	lead := testLead("owner@acmesurf.example")

	if err := f.queue.SendTouch(context.Background(), touchRequest(lead, 1)); err != nil {
		t.Fatal(err)
	}

	if f.touches.sentCount() != 1 {
		t.Errorf("sent touches = %d, want 1", f.touches.sentCount())
	}
	if len(f.machine.transitions) != 1 || f.machine.transitions[0] != domain.StatusTouchSent {
		t.Errorf("machine transitions = %v, want [touch_sent]", f.machine.transitions)
	}
	if !f.auditor.has(audit.EventTouchSent) {
		t.Error("touch.sent audit entry missing")
	}
	if len(f.gateway.sends) != 1 || f.gateway.sends[0].ThreadRef != ThreadRef(lead.ID) {
		t.Error("dispatched message should carry the lead thread ref")
	}
}

// Scenario: daily limit 1, two leads due. Exactly one dispatches; the
// second is rejected with ErrRateLimited and succeeds after day rollover.
func TestSendTouchDailyLimit(t *testing.T) {
	f := newQueueFixture(t, 1)
	first := testLead("first@storeone.example")
	second := testLead("second@storetwo.example")

	if err := f.queue.SendTouch(context.Background(), touchRequest(first, 1)); err != nil {
		t.Fatalf("first send: %v", err)
	}
	err := f.queue.SendTouch(context.Background(), touchRequest(second, 1))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second send = %v, want ErrRateLimited", err)
	}
	if f.touches.sentCount() != 1 {
		t.Fatalf("sent touches = %d, want 1", f.touches.sentCount())
	}
	if !f.auditor.has(audit.EventSendRateLimited) {
		t.Error("rate-limit audit entry missing")
	}

	// Day rolls over; the deferred lead dispatches.
	f.now = f.now.Add(24 * time.Hour)
	if err := f.queue.SendTouch(context.Background(), touchRequest(second, 1)); err != nil {
		t.Fatalf("send after rollover: %v", err)
	}
	if f.touches.sentCount() != 2 {
		t.Errorf("sent touches = %d, want 2", f.touches.sentCount())
	}
}

// Scenario: a suppressed address fails admission before any other check
// and regardless of budget or duplicate status.
func TestSendTouchSuppressed(t *testing.T) {
	f := newQueueFixture(t, 10)
	lead := testLead("optedout@store.example")
	f.suppression.blocked[lead.Email] = true

	err := f.queue.SendTouch(context.Background(), touchRequest(lead, 1))
	if !errors.Is(err, ErrSuppressed) {
		t.Fatalf("got %v, want ErrSuppressed", err)
	}
	if f.touches.sentCount() != 0 {
		t.Error("no touch may be recorded for a suppressed destination")
	}
	if len(f.gateway.sends) != 0 {
		t.Error("gateway must not be called for a suppressed destination")
	}
	if !f.auditor.has(audit.EventSendSuppressed) {
		t.Error("suppressed audit entry missing")
	}
}

func TestSendTouchDuplicate(t *testing.T) {
	f := newQueueFixture(t, 10)
	lead := testLead("owner@acmesurf.example")

	if err := f.queue.SendTouch(context.Background(), touchRequest(lead, 1)); err != nil {
		t.Fatal(err)
	}
	err := f.queue.SendTouch(context.Background(), touchRequest(lead, 1))
	if !errors.Is(err, ErrDuplicateTouch) {
		t.Fatalf("got %v, want ErrDuplicateTouch", err)
	}
	if f.touches.sentCount() != 1 {
		t.Errorf("sent touches = %d, want 1", f.touches.sentCount())
	}
	// The rejected duplicate must not burn budget.
	if f.counter.used["2026-03-02"] != 1 {
		t.Errorf("budget used = %d, want 1", f.counter.used["2026-03-02"])
	}
}

func TestSendTouchGatewayFailure(t *testing.T) {
	f := newQueueFixture(t, 10)
	f.gateway.fail = true
	lead := testLead("owner@acmesurf.example")

	err := f.queue.SendTouch(context.Background(), touchRequest(lead, 1))
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("got %v, want ErrSendFailed", err)
	}
	// Budget returns on failure and the slot frees for retry.
	if f.counter.used["2026-03-02"] != 0 {
		t.Errorf("budget used = %d, want 0 after failed send", f.counter.used["2026-03-02"])
	}
	if len(f.machine.transitions) != 0 {
		t.Error("no transition may happen after a failed send")
	}
	if !f.auditor.has(audit.EventTouchFailed) {
		t.Error("touch.failed audit entry missing")
	}

	// Retry succeeds once the gateway recovers.
	f.gateway.fail = false
	if err := f.queue.SendTouch(context.Background(), touchRequest(lead, 1)); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestSendTouchLintRejected(t *testing.T) {
	f := newQueueFixture(t, 10)
	lead := testLead("owner@acmesurf.example")
	req := touchRequest(lead, 1)
	req.Body = "We can offer wholesale price details on request."

	err := f.queue.SendTouch(context.Background(), req)
	if !errors.Is(err, ErrLintRejected) {
		t.Fatalf("got %v, want ErrLintRejected", err)
	}
	if len(f.gateway.sends) != 0 {
		t.Error("linted content must never reach the gateway")
	}
	if !f.auditor.has(audit.EventLintRejected) {
		t.Error("lint audit entry missing")
	}
}

func TestSendReplyKeepsSuppressionGate(t *testing.T) {
	f := newQueueFixture(t, 10)
	lead := testLead("optedout@store.example")
	f.suppression.blocked[lead.Email] = true

	err := f.queue.SendReply(context.Background(), ReplyRequest{
		Lead:         lead,
		Subject:      "Re: Acme",
		Body:         "Totally understand.",
		ReplyEventID: uuid.New(),
	})
	if !errors.Is(err, ErrSuppressed) {
		t.Fatalf("got %v, want ErrSuppressed", err)
	}
	if len(f.gateway.sends) != 0 {
		t.Error("gateway must not be called for a suppressed destination")
	}
}

func TestSendReplyBypassesTouchChecks(t *testing.T) {
	f := newQueueFixture(t, 0) // zero touch budget
	lead := testLead("owner@acmesurf.example")
	lead.Status = domain.StatusReplied
	lead.CurrentTouchNumber = 5 // exhausted sequence

	err := f.queue.SendReply(context.Background(), ReplyRequest{
		Lead:         lead,
		Subject:      "Re: Acme Surf Co",
		Body:         "Happy to walk through a couple of lines.",
		ReplyEventID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("reply send should bypass touch budget and numbering: %v", err)
	}
	if len(f.gateway.sends) != 1 {
		t.Errorf("gateway sends = %d, want 1", len(f.gateway.sends))
	}
	if !f.auditor.has(audit.EventReplySent) {
		t.Error("reply.sent audit entry missing")
	}
}

// Scenario: the dispatch task is redelivered after the first delivery
// already reached the gateway. The same reply event must not hit the
// recipient's inbox twice.
func TestSendReplyDuplicateEventSendsOnce(t *testing.T) {
	f := newQueueFixture(t, 10)
	lead := testLead("owner@acmesurf.example")
	lead.Status = domain.StatusReplied
	replyEventID := uuid.New()

	req := ReplyRequest{
		Lead:         lead,
		Subject:      "Re: Acme Surf Co",
		Body:         "Happy to walk through a couple of lines.",
		ReplyEventID: replyEventID,
	}

	if err := f.queue.SendReply(context.Background(), req); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	err := f.queue.SendReply(context.Background(), req)
	if !errors.Is(err, ErrDuplicateReply) {
		t.Fatalf("redelivered dispatch = %v, want ErrDuplicateReply", err)
	}
	if len(f.gateway.sends) != 1 {
		t.Errorf("gateway sends = %d, want 1", len(f.gateway.sends))
	}
	if !f.auditor.has(audit.EventSendDuplicate) {
		t.Error("duplicate-send audit entry missing")
	}
}

// Scenario: the gateway fails on the first dispatch. The reply event's
// slot frees so the retried task goes out.
func TestSendReplyGatewayFailureFreesSlot(t *testing.T) {
	f := newQueueFixture(t, 10)
	f.gateway.fail = true
	lead := testLead("owner@acmesurf.example")
	lead.Status = domain.StatusReplied

	req := ReplyRequest{
		Lead:         lead,
		Subject:      "Re: Acme Surf Co",
		Body:         "Happy to walk through a couple of lines.",
		ReplyEventID: uuid.New(),
	}

	if err := f.queue.SendReply(context.Background(), req); !errors.Is(err, ErrSendFailed) {
		t.Fatalf("got %v, want ErrSendFailed", err)
	}

	f.gateway.fail = false
	if err := f.queue.SendReply(context.Background(), req); err != nil {
		t.Fatalf("retry after gateway recovery: %v", err)
	}
	if len(f.gateway.sends) != 1 {
		t.Errorf("gateway sends = %d, want 1", len(f.gateway.sends))
	}
}
