package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/conformity_backend/utils"
	"bitbucket.org/mmdatafocus/conformity_backend/workflow"
)

func init() { gin.SetMode(gin.TestMode) }

func testRequestContext(t *testing.T, ctx context.Context) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/deviations", nil)
	c.Request = req.WithContext(ctx)
	return c, w
}

func TestRejectAuditors_ReadOnlySession(t *testing.T) {
	ctx := utils.SetIsAuditorInContext(context.Background(), true)
	c, w := testRequestContext(t, ctx)

	if rejectAuditors(c) {
		t.Fatal("auditor session must be rejected")
	}
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if !strings.Contains(w.Body.String(), utils.ErrorReadOnlySession.Error()) {
		t.Fatalf("body = %s, want the read-only session error", w.Body.String())
	}

	c, _ = testRequestContext(t, context.Background())
	if !rejectAuditors(c) {
		t.Fatal("non-auditor session must pass")
	}
}

func TestRespondError_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &workflow.ValidationError{Errors: []string{"title is required"}}, http.StatusBadRequest},
		{"invariant", &workflow.InvariantViolationError{Op: "UpdateDeviation", Reason: "deviation is closed"}, http.StatusUnprocessableEntity},
		{"not found", utils.ErrorRecordNotFound, http.StatusNotFound},
		{"stale", utils.ErrorStaleRecord, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		c, w := testRequestContext(t, context.Background())
		respondError(c, tc.err)
		if w.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}
