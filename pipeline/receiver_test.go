package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

// NOTE: DB-free. The webhook sender is an uncontrolled external service:
// malformed payloads and unknown events must come back as 200 with a
// success=false body, never as an error status. Handlers that need the
// database are covered by their own flows; these tests exercise the
// dispatch and soft-error contract only.

func TestDispatchWebhookUnknownEvent(t *testing.T) {
	result := DispatchWebhook(context.Background(), WebhookEnvelope{Event: "totally-new-event"})
	if result.Success {
		t.Error("unknown event must be a soft failure")
	}
	if !strings.Contains(result.Message, "totally-new-event") {
		t.Errorf("message should name the event, got %q", result.Message)
	}
}

func TestDispatchWebhookEmptyEvent(t *testing.T) {
	result := DispatchWebhook(context.Background(), WebhookEnvelope{})
	if result.Success {
		t.Error("missing event must be a soft failure")
	}
}

func TestDispatchTableCoversAllEvents(t *testing.T) {
	for _, event := range []string{"ingestion-result", "alignment-result", "closing-verification-result"} {
		if _, ok := webhookHandlers[event]; !ok {
			t.Errorf("no handler registered for %q", event)
		}
	}
}

func TestWebhookHandlerMalformedBodyIsSoft200(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/pipeline", WebhookHandler())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/pipeline", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var result WebhookResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if result.Success {
		t.Error("malformed payload must report success=false")
	}
}

func TestWebhookHandlerUnknownEventIsSoft200(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/pipeline", WebhookHandler())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/pipeline",
		strings.NewReader(`{"event":"mystery","success":true}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var result WebhookResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if result.Success {
		t.Error("unknown event must report success=false")
	}
}

// An uncontrolled sender may omit the optional corrected_lancamentos field.
// Absent and empty must stay distinguishable: absent means "no corrections,
// existing entries stand", empty means "replace with nothing". Treating
// absent as empty would delete a whole period's ledger on a bare success
// callback.
func TestCorrectedSetAbsentVsEmpty(t *testing.T) {
	var absent WebhookEnvelope
	err := json.Unmarshal([]byte(`{"event":"closing-verification-result","success":true,"verification_id":"abc"}`), &absent)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := absent.correctedSet(); ok {
		t.Error("absent corrected_lancamentos must not produce a replacement set")
	}

	var empty WebhookEnvelope
	err = json.Unmarshal([]byte(`{"event":"closing-verification-result","success":true,"verification_id":"abc","corrected_lancamentos":[]}`), &empty)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	corrected, ok := empty.correctedSet()
	if !ok {
		t.Error("explicit empty corrected_lancamentos is a replacement set")
	}
	if len(corrected) != 0 {
		t.Errorf("expected empty set, got %d entries", len(corrected))
	}

	var populated WebhookEnvelope
	err = json.Unmarshal([]byte(`{"event":"closing-verification-result","success":true,"verification_id":"abc","corrected_lancamentos":[{"data":"2024-07-01","valor":10,"historico":"x","debito":"1","credito":"2"}]}`), &populated)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	corrected, ok = populated.correctedSet()
	if !ok || len(corrected) != 1 {
		t.Errorf("expected 1 corrected entry, got ok=%v len=%d", ok, len(corrected))
	}
}

func TestClosingVerificationMissingIdIsSoftFail(t *testing.T) {
	result := DispatchWebhook(context.Background(), WebhookEnvelope{
		Event:   "closing-verification-result",
		Success: true,
	})
	if result.Success {
		t.Error("missing verification_id must be a soft failure")
	}
}
