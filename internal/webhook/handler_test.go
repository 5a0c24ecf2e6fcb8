package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"outreach_backend/internal/replies"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeConfig struct {
	key string
}

func (f fakeConfig) GetWebhookAPIKey() string { return f.key }

type fakeProcessor struct {
	calls   []replies.InboundEvent
	outcome replies.Outcome
	err     error
}

func (f *fakeProcessor) Process(_ context.Context, event replies.InboundEvent) (replies.Outcome, error) {
	f.calls = append(f.calls, event)
	return f.outcome, f.err
}

func newTestRouter(cfg fakeConfig, processor *fakeProcessor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	group := engine.Group("/api/v1/webhooks")
	group.Use(APIKeyAuthMiddleware(cfg))
	handler := NewHandler(processor, validator.New(), logger.New("test"))
	group.POST("/replies", handler.HandleInboundReply)
	return engine
}

func postReply(t *testing.T, engine *gin.Engine, apiKey string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/replies", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Webhook-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestInboundReplyAccepted(t *testing.T) {
	leadID := uuid.New()
	processor := &fakeProcessor{outcome: replies.Outcome{
		ReplyEventID:   uuid.New(),
		LeadID:         &leadID,
		Classification: replies.ClassificationGeneral,
	}}
	engine := newTestRouter(fakeConfig{key: "secret"}, processor)

	rec := postReply(t, engine, "secret", map[string]any{
		"messageId": "<msg-1@example.com>",
		"from":      "owner@store.example",
		"body":      "Thanks for reaching out, tell me more.",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if len(processor.calls) != 1 {
		t.Fatalf("processor called %d times, want 1", len(processor.calls))
	}
	if got := processor.calls[0].SourceEventID; got != "<msg-1@example.com>" {
		t.Errorf("SourceEventID = %q", got)
	}
	if processor.calls[0].ReceivedAt.IsZero() {
		t.Error("ReceivedAt should default to now")
	}
}

func TestInboundReplyRejectsBadKey(t *testing.T) {
	processor := &fakeProcessor{}
	engine := newTestRouter(fakeConfig{key: "secret"}, processor)

	for _, key := range []string{"", "wrong"} {
		rec := postReply(t, engine, key, map[string]any{
			"messageId": "<msg-2@example.com>",
			"from":      "owner@store.example",
			"body":      "hello",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("key %q: status = %d, want %d", key, rec.Code, http.StatusUnauthorized)
		}
	}
	if len(processor.calls) != 0 {
		t.Fatalf("processor called %d times, want 0", len(processor.calls))
	}
}

func TestInboundReplyClosedWithoutConfiguredKey(t *testing.T) {
	processor := &fakeProcessor{}
	engine := newTestRouter(fakeConfig{key: ""}, processor)

	rec := postReply(t, engine, "anything", map[string]any{
		"messageId": "<msg-3@example.com>",
		"from":      "owner@store.example",
		"body":      "hello",
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestInboundReplyValidation(t *testing.T) {
	processor := &fakeProcessor{}
	engine := newTestRouter(fakeConfig{key: "secret"}, processor)

	rec := postReply(t, engine, "secret", map[string]any{
		"messageId": "<msg-4@example.com>",
		"from":      "not-an-email",
		"body":      "hello",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(processor.calls) != 0 {
		t.Fatalf("processor called %d times, want 0", len(processor.calls))
	}
}

func TestInboundReplyDuplicateAcknowledged(t *testing.T) {
	processor := &fakeProcessor{outcome: replies.Outcome{
		ReplyEventID: uuid.New(),
		Duplicate:    true,
	}}
	engine := newTestRouter(fakeConfig{key: "secret"}, processor)

	rec := postReply(t, engine, "secret", map[string]any{
		"messageId": "<msg-5@example.com>",
		"from":      "owner@store.example",
		"body":      "hello again",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "duplicate" {
		t.Errorf("status field = %q, want duplicate", resp.Status)
	}
}
