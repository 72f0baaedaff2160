package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/saulto/saulto/internal/api/middleware"
	"github.com/saulto/saulto/internal/auth"
	"github.com/stretchr/testify/assert"
)

const secret = "test-secret-at-least-32-bytes!!!"

func issueToken(t *testing.T, roles []string) string {
	t.Helper()
	tok, err := auth.IssueAccessToken("user-1", "u@example.com", roles, "company-1", secret, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_ValidToken(t *testing.T) {
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.ClaimsFromContext(r.Context())
		assert.NotNil(t, claims)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "company-1", claims.CompanyID)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, []string{"Viewer"}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_InvalidToken(t *testing.T) {
	handler := middleware.RequireAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer this.is.garbage")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermission_Viewer_CannotTriggerSync(t *testing.T) {
	chain := middleware.RequireAuth(secret)(
		middleware.RequirePermission("sync:trigger")(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			}),
		),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/c1/sync", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, []string{"Viewer"}))
	w := httptest.NewRecorder()
	chain.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePermission_Analyst_CanTriggerSync(t *testing.T) {
	chain := middleware.RequireAuth(secret)(
		middleware.RequirePermission("sync:trigger")(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			}),
		),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/c1/sync", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, []string{"Analyst"}))
	w := httptest.NewRecorder()
	chain.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRequirePermission_Admin_Wildcard(t *testing.T) {
	chain := middleware.RequireAuth(secret)(
		middleware.RequirePermission("anything:at:all")(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}),
		),
	)

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, []string{"Admin"}))
	w := httptest.NewRecorder()
	chain.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
