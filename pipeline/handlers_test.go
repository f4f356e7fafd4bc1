package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// NOTE: DB-free. Reopen is admin-only and the gate runs before any store
// access, so an unauthenticated caller is rejected outright.

func TestReopenClosingRequiresAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/closings/:id/reopen", ReopenClosingHandler())

	req := httptest.NewRequest(http.MethodPost, "/closings/5/reopen", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin caller, got %d", w.Code)
	}
}
