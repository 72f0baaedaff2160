package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/saulto/saulto/internal/api/jsonapi"
	"github.com/saulto/saulto/internal/api/middleware"
	"github.com/saulto/saulto/internal/model"
	"gorm.io/gorm"
)

// placeholderAccountID mirrors the orchestrator's fallback so a connection
// created before account resolution works still syncs.
const placeholderAccountID = "unknown"

// OAuthHandler handles the connect and provider-callback routes.
type OAuthHandler struct {
	db        *gorm.DB
	providers map[string]OAuthProvider
	queue     SyncQueue
	baseURL   string
	log       *slog.Logger
}

// NewOAuthHandler creates an OAuthHandler. providers holds one entry per
// source with configured client credentials.
func NewOAuthHandler(db *gorm.DB, providers map[string]OAuthProvider, queue SyncQueue, baseURL string, log *slog.Logger) *OAuthHandler {
	return &OAuthHandler{db: db, providers: providers, queue: queue, baseURL: baseURL, log: log}
}

// Connect handles GET /api/v1/connect/{source}. It returns the provider
// authorization URL for the frontend to redirect the browser to.
func (h *OAuthHandler) Connect(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	provider, ok := h.providers[source]
	if !ok {
		jsonapi.RenderError(w, http.StatusNotFound, "unknown_source", "Not Found",
			"source is unknown or its OAuth credentials are not configured")
		return
	}

	company, ok := tenantCompany(w, r, h.db)
	if !ok {
		return
	}
	claims := middleware.ClaimsFromContext(r.Context())

	authorizeURL, err := provider.AuthorizationURL(company.ID, claims.UserID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "oauth_error", "Internal Server Error",
			"failed to build authorization URL")
		return
	}

	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "oauth_authorizations",
		ID:   source,
		Attributes: map[string]string{
			"authorize_url": authorizeURL,
		},
	})
}

// Callback handles GET /api/v1/oauth/{source}/callback. The route is public
// (the browser arrives here from the provider); the signed state token is
// the authentication.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	provider, ok := h.providers[source]
	if !ok {
		h.redirectError(w, r, source, "unknown_source")
		return
	}

	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		// User declined on the provider's consent screen.
		h.redirectError(w, r, source, errCode)
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		h.redirectError(w, r, source, "missing_code_or_state")
		return
	}

	claims, err := provider.ValidateState(state)
	if err != nil {
		h.log.Warn("oauth state rejected", "source", source, "err", err)
		h.redirectError(w, r, source, "invalid_state")
		return
	}

	ctx := r.Context()
	tok, err := provider.Exchange(ctx, code)
	if err != nil {
		h.log.Error("oauth code exchange failed", "source", source, "err", err)
		h.redirectError(w, r, source, "exchange_failed")
		return
	}

	accountID, err := provider.ResolveAccountID(ctx, tok.AccessToken)
	if err != nil {
		h.log.Warn("account id resolution failed, using placeholder", "source", source, "err", err)
		accountID = placeholderAccountID
	}

	conn := model.Connection{
		CompanyID:    claims.CompanyID,
		Source:       source,
		AccountID:    accountID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Status:       model.ConnectionStatusConnected,
	}
	if !tok.ExpiresAt.IsZero() {
		expiry := tok.ExpiresAt
		conn.TokenExpiry = &expiry
	}

	// One connection per company+source: reconnecting replaces credentials.
	var existing model.Connection
	err = h.db.WithContext(ctx).
		Where("company_id = ? AND source = ?", claims.CompanyID, source).
		First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"account_id":    conn.AccountID,
			"access_token":  conn.AccessToken,
			"refresh_token": conn.RefreshToken,
			"token_expiry":  conn.TokenExpiry,
			"status":        model.ConnectionStatusConnected,
			"last_error":    "",
		}
		if err := h.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			h.log.Error("update connection", "source", source, "err", err)
			h.redirectError(w, r, source, "save_failed")
			return
		}
		conn.ID = existing.ID
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := h.db.WithContext(ctx).Create(&conn).Error; err != nil {
			h.log.Error("create connection", "source", source, "err", err)
			h.redirectError(w, r, source, "save_failed")
			return
		}
	default:
		h.redirectError(w, r, source, "save_failed")
		return
	}

	// Kick off the first sync immediately so the dashboard has data soon.
	if err := h.queue.EnqueueSync(ctx, conn.ID); err != nil {
		h.log.Error("enqueue initial sync", "connection", conn.ID, "err", err)
	}

	h.redirect(w, r, url.Values{"connected": {source}})
}

func (h *OAuthHandler) redirectError(w http.ResponseWriter, r *http.Request, source, code string) {
	h.redirect(w, r, url.Values{"source": {source}, "error": {code}})
}

func (h *OAuthHandler) redirect(w http.ResponseWriter, r *http.Request, params url.Values) {
	http.Redirect(w, r, h.baseURL+"/connections?"+params.Encode(), http.StatusFound)
}
