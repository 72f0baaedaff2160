package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/saulto/saulto/internal/auth"
)

// Token is one OAuth credential set as returned by a provider token endpoint.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Authenticator drives the OAuth2 authorization-code flow for one source.
type Authenticator struct {
	def          Definition
	clientID     string
	clientSecret string
	redirectURI  string
	stateSecret  string
	client       *http.Client
}

// NewAuthenticator builds an Authenticator for the given definition. The
// redirect URI is derived from the app base URL and the source name, and
// must match the provider's registered callback.
func NewAuthenticator(def Definition, clientID, clientSecret, baseURL, stateSecret string, client *http.Client) *Authenticator {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Authenticator{
		def:          def,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  fmt.Sprintf("%s/api/v1/oauth/%s/callback", baseURL, def.Name),
		stateSecret:  stateSecret,
		client:       client,
	}
}

// AuthorizationURL builds the provider authorization URL embedding a signed
// state token that encodes the tenant and (optionally) the inviting user.
func (a *Authenticator) AuthorizationURL(companyID, userID string) (string, error) {
	state, err := auth.IssueStateToken(companyID, userID, a.def.Name, a.stateSecret)
	if err != nil {
		return "", fmt.Errorf("issue oauth state: %w", err)
	}

	q := url.Values{}
	q.Set("client_id", a.clientID)
	q.Set("redirect_uri", a.redirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	if len(a.def.Scopes) > 0 {
		q.Set("scope", strings.Join(a.def.Scopes, " "))
	}
	return a.def.AuthURL + "?" + q.Encode(), nil
}

// ValidateState checks the state token returned on the provider callback
// and returns the tenant it was issued for.
func (a *Authenticator) ValidateState(state string) (*auth.StateClaims, error) {
	return auth.ParseStateToken(state, a.def.Name, a.stateSecret)
}

// Exchange swaps an authorization code for tokens.
func (a *Authenticator) Exchange(ctx context.Context, code string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", a.redirectURI)
	return a.requestToken(ctx, form)
}

// Refresh exchanges a refresh token for a fresh token set.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return a.requestToken(ctx, form)
}

func (a *Authenticator) requestToken(ctx context.Context, form url.Values) (Token, error) {
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.def.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%s token request: %w", a.def.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The raw provider body is kept in the error for diagnosability.
		return Token{}, fmt.Errorf("%s token endpoint returned %d: %s",
			a.def.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Token{}, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return Token{}, fmt.Errorf("%s token endpoint returned no access_token", a.def.Name)
	}

	tok := Token{AccessToken: payload.AccessToken, RefreshToken: payload.RefreshToken}
	if payload.ExpiresIn > 0 {
		tok.ExpiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return tok, nil
}

// ResolveAccountID probes the provider identity endpoint and maps whichever
// response shape it returns to a canonical account id.
func (a *Authenticator) ResolveAccountID(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.def.IdentityURL, nil)
	if err != nil {
		return "", fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s identity request: %w", a.def.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read identity response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s identity endpoint returned %d: %s",
			a.def.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return CanonicalAccountID(body)
}
