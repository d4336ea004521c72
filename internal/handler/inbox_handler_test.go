package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Validation failures are rejected before any repository or queue access,
// so these routes can be exercised with nil dependencies.
func newValidationRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	inboxes := NewInboxHandler(nil, nil, nil, nil, 30, zap.NewNop())
	emails := NewEmailHandler(nil, nil, nil, zap.NewNop())

	r := gin.New()
	r.POST("/inboxes", inboxes.Create)
	r.POST("/inboxes/:id/sync", inboxes.TriggerSync)
	r.PATCH("/inboxes/:id/status", inboxes.UpdateStatus)
	r.GET("/emails/:id", emails.Get)
	r.POST("/emails", emails.Create)
	return r
}

func TestRequestValidation(t *testing.T) {
	router := newValidationRouter()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{
			name:   "create inbox with malformed json",
			method: http.MethodPost,
			path:   "/inboxes",
			body:   `{"email_address":`,
		},
		{
			name:   "create inbox with invalid address",
			method: http.MethodPost,
			path:   "/inboxes",
			body:   `{"email_address":"not-an-address","imap_server":"imap.example.com","password":"x"}`,
		},
		{
			name:   "create inbox missing password",
			method: http.MethodPost,
			path:   "/inboxes",
			body:   `{"email_address":"a@example.com","imap_server":"imap.example.com"}`,
		},
		{
			name:   "sync with non-numeric id",
			method: http.MethodPost,
			path:   "/inboxes/abc/sync",
		},
		{
			name:   "status patch missing is_active",
			method: http.MethodPatch,
			path:   "/inboxes/5/status",
			body:   `{}`,
		},
		{
			name:   "get email with non-numeric id",
			method: http.MethodGet,
			path:   "/emails/abc",
		},
		{
			name:   "create email missing body",
			method: http.MethodPost,
			path:   "/emails",
			body:   `{"sender":"a@example.com"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}
