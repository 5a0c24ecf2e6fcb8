package replies

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"outreach_backend/internal/approval"
	"outreach_backend/internal/audit"
	"outreach_backend/internal/leads"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/objection"
	"outreach_backend/internal/shared/locks"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadResolver struct {
	leads map[uuid.UUID]*domain.Lead
}

func (f *fakeLeadResolver) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	if lead, ok := f.leads[id]; ok {
		return *lead, nil
	}
	return domain.Lead{}, errors.New("lead not found")
}

func (f *fakeLeadResolver) GetByEmail(_ context.Context, email string) (domain.Lead, error) {
	for _, lead := range f.leads {
		if lead.Email == email {
			return *lead, nil
		}
	}
	return domain.Lead{}, errors.New("lead not found")
}

type fakeReplyStore struct {
	recorded   []RecordParams
	classified map[uuid.UUID]ClassifyParams
	seen       map[string]bool
}

func newFakeReplyStore() *fakeReplyStore {
	return &fakeReplyStore{
		classified: make(map[uuid.UUID]ClassifyParams),
		seen:       make(map[string]bool),
	}
}

func (f *fakeReplyStore) Record(_ context.Context, params RecordParams) (ReplyEvent, error) {
	if f.seen[params.SourceEventID] {
		return ReplyEvent{}, ErrDuplicateEvent
	}
	f.seen[params.SourceEventID] = true
	f.recorded = append(f.recorded, params)
	return ReplyEvent{ID: uuid.New(), SourceEventID: params.SourceEventID, LeadID: params.LeadID}, nil
}

func (f *fakeReplyStore) Classify(_ context.Context, id uuid.UUID, params ClassifyParams) error {
	f.classified[id] = params
	return nil
}

type transitionCall struct {
	leadID uuid.UUID
	to     domain.Status
}

// fakeTransitioner mirrors the state machine guards against an in-memory
// lead map.
type fakeTransitioner struct {
	resolver    *fakeLeadResolver
	transitions []transitionCall
}

func (f *fakeTransitioner) Transition(_ context.Context, leadID uuid.UUID, to domain.Status, _ leads.TransitionParams) (domain.Lead, error) {
	lead, ok := f.resolver.leads[leadID]
	if !ok {
		return domain.Lead{}, errors.New("lead not found")
	}
	if !domain.CanTransition(lead.Status, to, lead.CurrentTouchNumber) {
		return domain.Lead{}, domain.ErrInvalidTransition
	}
	lead.Status = to
	f.transitions = append(f.transitions, transitionCall{leadID: leadID, to: to})
	return *lead, nil
}

func (f *fakeTransitioner) Suppress(ctx context.Context, leadID uuid.UUID, reason, actor, requestID string) (domain.Lead, error) {
	return f.Transition(ctx, leadID, domain.StatusSuppressed, leads.TransitionParams{Reason: reason})
}

type fakeSuppressor struct {
	added []string
}

func (f *fakeSuppressor) Add(_ context.Context, email, _, _ string) error {
	f.added = append(f.added, email)
	return nil
}

type fakeApprovalCreator struct {
	created []approval.CreateParams
	pending map[uuid.UUID]bool
}

func (f *fakeApprovalCreator) Create(_ context.Context, params approval.CreateParams) (approval.DraftApproval, error) {
	if f.pending[params.LeadID] {
		return approval.DraftApproval{}, approval.ErrPendingExists
	}
	if f.pending == nil {
		f.pending = make(map[uuid.UUID]bool)
	}
	f.pending[params.LeadID] = true
	f.created = append(f.created, params)
	return approval.DraftApproval{ID: uuid.New(), LeadID: params.LeadID, Status: approval.StatusPending}, nil
}

type fakeAuditLog struct {
	events []string
}

func (f *fakeAuditLog) Append(_ context.Context, params audit.AppendParams) error {
	f.events = append(f.events, params.Event)
	return nil
}

func (f *fakeAuditLog) has(event string) bool {
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

type fakeBookingScheduler struct {
	scheduled []uuid.UUID
}

func (f *fakeBookingScheduler) ScheduleBookingConfirmation(_ context.Context, leadID uuid.UUID) error {
	f.scheduled = append(f.scheduled, leadID)
	return nil
}

type fakeIdentityConfig struct{}

func (fakeIdentityConfig) GetCompanyName() string  { return "Acme Distribution" }
func (fakeIdentityConfig) GetBrandNames() []string { return []string{"Nordica", "Velora"} }
func (fakeIdentityConfig) GetBookingLink() string  { return "https://cal.example.com/acme" }

type correlatorFixture struct {
	correlator *Correlator
	resolver   *fakeLeadResolver
	replies    *fakeReplyStore
	machine    *fakeTransitioner
	suppressor *fakeSuppressor
	approvals  *fakeApprovalCreator
	auditLog   *fakeAuditLog
	booking    *fakeBookingScheduler
}

func newCorrelatorFixture(t *testing.T) *correlatorFixture {
	t.Helper()

	resolver := &fakeLeadResolver{leads: make(map[uuid.UUID]*domain.Lead)}
	replies := newFakeReplyStore()
	machine := &fakeTransitioner{resolver: resolver}
	suppressor := &fakeSuppressor{}
	approvals := &fakeApprovalCreator{pending: make(map[uuid.UUID]bool)}
	auditLog := &fakeAuditLog{}
	booking := &fakeBookingScheduler{}

	correlator := NewCorrelator(CorrelatorParams{
		LeadResolver: resolver,
		ReplyStore:   replies,
		Machine:      machine,
		Suppressions: suppressor,
		Approvals:    approvals,
		AuditLog:     auditLog,
		Booking:      booking,
		KB:           objection.DefaultKB(),
		Identity:     fakeIdentityConfig{},
		Locks:        locks.NewKeyedMutex(),
		Logger:       logger.New("development"),
	})

	return &correlatorFixture{
		correlator: correlator,
		resolver:   resolver,
		replies:    replies,
		machine:    machine,
		suppressor: suppressor,
		approvals:  approvals,
		auditLog:   auditLog,
		booking:    booking,
	}
}

func (f *correlatorFixture) addLead(status domain.Status, touchNumber int) *domain.Lead {
	lead := &domain.Lead{
		ID:                 uuid.New(),
		Email:              "buyer@example.com",
		CompanyName:        "Example Retail",
		Status:             status,
		CurrentTouchNumber: touchNumber,
	}
	f.resolver.leads[lead.ID] = lead
	return lead
}

func inboundFor(lead *domain.Lead, sourceID, body string) InboundEvent {
	return InboundEvent{
		SourceEventID: sourceID,
		FromAddress:   lead.Email,
		ToAddress:     "outreach@acme.example.com",
		ThreadRef:     "lead-" + lead.ID.String(),
		Subject:       "Re: quick question",
		Body:          body,
		ReceivedAt:    time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
	}
}

func TestProcessObjectionReply(t *testing.T) {
	f := newCorrelatorFixture(t)
	lead := f.addLead(domain.StatusTouchSent, 2)

	outcome, err := f.correlator.Process(context.Background(),
		inboundFor(lead, "msg-1", "Thanks, but we already have a supplier for those brands."))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if outcome.Classification != ClassificationObjection {
		t.Errorf("classification = %q, want %q", outcome.Classification, ClassificationObjection)
	}
	if outcome.ObjectionCategory != "already_have_supplier" {
		t.Errorf("category = %q, want already_have_supplier", outcome.ObjectionCategory)
	}
	if outcome.ApprovalID == nil {
		t.Fatal("expected a draft approval to be opened")
	}
	if lead.Status != domain.StatusReplied {
		t.Errorf("lead status = %q, want %q", lead.Status, domain.StatusReplied)
	}

	if len(f.approvals.created) != 1 {
		t.Fatalf("approvals created = %d, want 1", len(f.approvals.created))
	}
	created := f.approvals.created[0]
	if created.DraftBody == nil {
		t.Fatal("expected a pre-rendered draft body")
	}
	if !strings.Contains(*created.DraftBody, "https://cal.example.com/acme") {
		t.Error("draft body is missing the booking link")
	}
	if !f.auditLog.has(audit.EventObjectionMatched) {
		t.Error("expected objection_matched audit entry")
	}
}

func TestProcessDuplicateSourceEvent(t *testing.T) {
	f := newCorrelatorFixture(t)
	lead := f.addLead(domain.StatusTouchSent, 1)
	event := inboundFor(lead, "msg-dup", "we already have a supplier")

	if _, err := f.correlator.Process(context.Background(), event); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	outcome, err := f.correlator.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	if !outcome.Duplicate {
		t.Error("expected duplicate outcome")
	}
	if len(f.replies.recorded) != 1 {
		t.Errorf("recorded events = %d, want 1", len(f.replies.recorded))
	}
	if len(f.approvals.created) != 1 {
		t.Errorf("approvals created = %d, want 1", len(f.approvals.created))
	}
	if !f.auditLog.has(audit.EventReplyDuplicate) {
		t.Error("expected reply_duplicate audit entry")
	}
}

func TestProcessUnsubscribeReply(t *testing.T) {
	f := newCorrelatorFixture(t)
	lead := f.addLead(domain.StatusTouchSent, 3)

	outcome, err := f.correlator.Process(context.Background(),
		inboundFor(lead, "msg-2", "Please remove me from your list."))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if outcome.Classification != ClassificationUnsubscribe {
		t.Errorf("classification = %q, want %q", outcome.Classification, ClassificationUnsubscribe)
	}
	if lead.Status != domain.StatusSuppressed {
		t.Errorf("lead status = %q, want %q", lead.Status, domain.StatusSuppressed)
	}
	if len(f.suppressor.added) != 1 || f.suppressor.added[0] != lead.Email {
		t.Errorf("suppressed addresses = %v, want [%s]", f.suppressor.added, lead.Email)
	}
	if len(f.approvals.created) != 0 {
		t.Error("unsubscribe must not open an approval")
	}
}

func TestProcessMeetingIntentBooksLead(t *testing.T) {
	f := newCorrelatorFixture(t)
	lead := f.addLead(domain.StatusTouchSent, 2)

	outcome, err := f.correlator.Process(context.Background(),
		inboundFor(lead, "msg-3", "Sounds interesting, let's talk. Can we book a call next week?"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if outcome.Classification != ClassificationMeeting {
		t.Errorf("classification = %q, want %q", outcome.Classification, ClassificationMeeting)
	}
	if lead.Status != domain.StatusBooked {
		t.Errorf("lead status = %q, want %q", lead.Status, domain.StatusBooked)
	}
	if len(f.booking.scheduled) != 1 {
		t.Errorf("booking confirmations = %d, want 1", len(f.booking.scheduled))
	}
	if !f.auditLog.has(audit.EventLeadBooked) {
		t.Error("expected lead_booked audit entry")
	}
}

func TestProcessGeneralReplyOpensBlankApproval(t *testing.T) {
	f := newCorrelatorFixture(t)
	lead := f.addLead(domain.StatusTouchSent, 1)

	outcome, err := f.correlator.Process(context.Background(),
		inboundFor(lead, "msg-4", "Could you tell me more about your delivery terms?"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if outcome.Classification != ClassificationGeneral {
		t.Errorf("classification = %q, want %q", outcome.Classification, ClassificationGeneral)
	}
	if len(f.approvals.created) != 1 {
		t.Fatalf("approvals created = %d, want 1", len(f.approvals.created))
	}
	if f.approvals.created[0].DraftBody != nil {
		t.Error("general replies must not carry a pre-rendered draft")
	}
	if lead.Status != domain.StatusReplied {
		t.Errorf("lead status = %q, want %q", lead.Status, domain.StatusReplied)
	}
}

func TestProcessUnmatchedReplySoftFails(t *testing.T) {
	f := newCorrelatorFixture(t)

	outcome, err := f.correlator.Process(context.Background(), InboundEvent{
		SourceEventID: "msg-5",
		FromAddress:   "stranger@nowhere.example.com",
		Subject:       "hello",
		Body:          "who is this?",
		ReceivedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if outcome.Classification != ClassificationUnmatched {
		t.Errorf("classification = %q, want %q", outcome.Classification, ClassificationUnmatched)
	}
	if outcome.LeadID != nil {
		t.Error("unmatched reply must not resolve a lead")
	}
	if !f.auditLog.has(audit.EventReplyUnmatched) {
		t.Error("expected reply_unmatched audit entry")
	}
	if len(f.machine.transitions) != 0 {
		t.Error("unmatched reply must not transition any lead")
	}
}

func TestProcessFallsBackToSenderAddress(t *testing.T) {
	f := newCorrelatorFixture(t)
	lead := f.addLead(domain.StatusTouchSent, 1)

	event := inboundFor(lead, "msg-6", "we already have a supplier")
	event.ThreadRef = "" // forwarded reply lost the reference header

	outcome, err := f.correlator.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if outcome.LeadID == nil || *outcome.LeadID != lead.ID {
		t.Error("expected lead resolved via sender address")
	}
}

func TestProcessSecondObjectionKeepsPendingApproval(t *testing.T) {
	f := newCorrelatorFixture(t)
	lead := f.addLead(domain.StatusTouchSent, 2)

	if _, err := f.correlator.Process(context.Background(),
		inboundFor(lead, "msg-7", "we already have a supplier")); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	outcome, err := f.correlator.Process(context.Background(),
		inboundFor(lead, "msg-8", "also that seems too expensive for us"))
	if err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	if len(f.approvals.created) != 1 {
		t.Errorf("approvals created = %d, want 1", len(f.approvals.created))
	}
	if outcome.ApprovalID != nil {
		t.Error("second reply must not open another approval while one is pending")
	}
}
