package handler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	calendaradapter "github.com/smallbiznis/calendar-gateway/internal/adapter/calendar"
	oauthadapter "github.com/smallbiznis/calendar-gateway/internal/adapter/oauth"
	"github.com/smallbiznis/calendar-gateway/internal/config"
	"github.com/smallbiznis/calendar-gateway/internal/domain"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
	"github.com/smallbiznis/calendar-gateway/internal/domain/oauth"
	httptransport "github.com/smallbiznis/calendar-gateway/internal/http"
	"github.com/smallbiznis/calendar-gateway/internal/http/handler"
	"github.com/smallbiznis/calendar-gateway/internal/repository"
	"github.com/smallbiznis/calendar-gateway/internal/service/integration"
)

type memoryTokens struct {
	accounts map[string]domain.ConnectedAccount
}

func (m *memoryTokens) Account(_ context.Context, userID string, p calendar.Provider) (domain.ConnectedAccount, error) {
	account, ok := m.accounts[userID+":"+string(p)]
	if !ok {
		return domain.ConnectedAccount{}, fmt.Errorf("lookup: %w", calendar.ErrNotConnected)
	}
	return account, nil
}

func (m *memoryTokens) AccessToken(ctx context.Context, userID string, p calendar.Provider) (string, error) {
	account, err := m.Account(ctx, userID, p)
	return account.AccessToken, err
}

func (m *memoryTokens) Store(_ context.Context, userID string, p calendar.Provider, tok *oauth.Token) (domain.ConnectedAccount, error) {
	account := domain.ConnectedAccount{UserID: userID, Provider: p, AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	m.accounts[userID+":"+string(p)] = account
	return account, nil
}

func (m *memoryTokens) Forget(_ context.Context, userID string, p calendar.Provider) (bool, error) {
	_, ok := m.accounts[userID+":"+string(p)]
	delete(m.accounts, userID+":"+string(p))
	return ok, nil
}

func (m *memoryTokens) ForgetToken(context.Context, calendar.Provider, string) (int64, error) {
	return 0, nil
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type testEnv struct {
	router *gin.Engine
	tokens *memoryTokens
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		ServiceName: "calendar-gateway-test",
		Google:      config.ProviderConfig{ClientID: "google-client", ClientSecret: "secret"},
		Outlook:     config.ProviderConfig{ClientID: "outlook-client", ClientSecret: "secret"},
		Calendly:    config.ProviderConfig{ClientID: "calendly-client", ClientSecret: "secret"},
		HubSpot:     config.ProviderConfig{ClientID: "hubspot-client", ClientSecret: "secret"},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	tokens := &memoryTokens{accounts: map[string]domain.ConnectedAccount{}}
	svc := integration.NewService(
		oauthadapter.NewSet(cfg, http.DefaultClient),
		calendaradapter.NewSet(cfg, http.DefaultClient),
		tokens, nil, nil, cfg, zap.NewNop(),
	)
	health := handler.NewHealthHandler(map[string]repository.Pinger{"database": stubPinger{}})
	router := httptransport.NewRouter(cfg, zap.NewNop(), handler.NewIntegrationHandler(svc), health, nil)
	return &testEnv{router: router, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var payload map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	}
	return w, payload
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestGoogleConnectReturnsAuthURI(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/google/connect", `{"redirect_uri":"https://app/cb"}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	authURI, ok := body["authUri"].(string)
	require.True(t, ok)
	require.Contains(t, authURI, "redirect_uri=https%3A%2F%2Fapp%2Fcb")
	require.Contains(t, authURI, "client_id=google-client")
	require.Equal(t, authURI, body["authUrl"])
}

func TestConnectAcceptsCamelCaseRedirect(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/hubspot/connect", `{"redirectUri":"https://app/hs"}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, body["authUrl"], "redirect_uri=https%3A%2F%2Fapp%2Fhs")
	require.NotContains(t, body, "authUri")
}

func TestConnectRejectsNonHTTPRedirect(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/google/connect", `{"redirect_uri":"ftp://app/cb"}`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "redirect_uri must be a valid URL starting with http:// or https://", body["error"])
}

func TestConnectWithoutAnyRedirect(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/outlook/connect", `{}`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Redirect URI not provided and not configured in environment", body["error"])
}

func TestBearerValidationMessages(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"missing", nil, "Authorization header with Bearer token is required"},
		{"wrong scheme", map[string]string{"Authorization": "Basic abc"}, "Authorization header must start with Bearer"},
		{"empty token", map[string]string{"Authorization": "Bearer "}, "Bearer token is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := env.do(t, http.MethodGet, "/api/v1/google/events", "", tc.headers)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.Equal(t, map[string]any{"error": tc.want}, body)
		})
	}
}

func TestCalendlyInviteeRequiresEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/calendly/invitees",
		`{"event_type":"https://api.calendly.com/event_types/E1","start_time":"2024-06-01T12:00:00Z","invitee":{"name":"Guest"}}`,
		bearer("tok"))

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invitee.email is required", body["error"])
}

func TestCalendlyInviteeCreated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/invitees", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"resource":{"uri":"https://api.calendly.com/scheduled_events/S1/invitees/I1","email":"guest@example.com","status":"active"}}`))
	}))
	defer srv.Close()
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Calendly.APIBaseURL = srv.URL })

	w, body := env.do(t, http.MethodPost, "/api/v1/calendly/invitees",
		`{"event_type":"https://api.calendly.com/event_types/E1","start_time":"2024-06-01T12:00:00Z","invitee":{"email":"guest@example.com"}}`,
		bearer("tok"))

	require.Equal(t, http.StatusCreated, w.Code)
	invitee, ok := body["invitee"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "guest@example.com", invitee["email"])
}

func TestOutlookRevokeIsNotImplemented(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/outlook/revoke", "", bearer("tok"))

	require.Equal(t, http.StatusNotImplemented, w.Code)
	require.NotEmpty(t, body["error"])
}

func TestSingleEventRoutesUnsupportedForHubSpot(t *testing.T) {
	env := newTestEnv(t, nil)

	w, _ := env.do(t, http.MethodGet, "/api/v1/hubspot/events/123", "", bearer("tok"))

	require.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestCalendlyOnlyRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	w, _ := env.do(t, http.MethodGet, "/api/v1/google/event_types", "", bearer("tok"))

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateEventValidatesBody(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/google/events",
		`{"event":{"title":"Standup","start":{"dateTime":"2024-06-01T09:00:00Z"}}}`,
		bearer("tok"))

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "event.end is required", body["error"])
}

func TestEventsRejectsMalformedWindow(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodGet, "/api/v1/outlook/events?timeMin=yesterday", "", bearer("tok"))

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "timeMin must be an RFC3339 timestamp", body["error"])
}

func TestOutlookAccountEventsRejectForeignPageToken(t *testing.T) {
	var leaked []string
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		leaked = append(leaked, r.Header.Get("Authorization"))
	}))
	defer foreign.Close()
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Outlook.APIBaseURL = "https://graph.microsoft.com/v1.0" })
	env.tokens.accounts["user-1:outlook"] = domain.ConnectedAccount{UserID: "user-1", Provider: calendar.Outlook, AccessToken: "stored-token"}

	w, body := env.do(t, http.MethodGet,
		"/api/v1/outlook/accounts/user-1/events?pageToken="+url.QueryEscape(foreign.URL+"/steal"), "", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "pageToken must be a Microsoft Graph nextLink", body["error"])
	require.Empty(t, leaked)
}

func TestAccountNotConnected(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodGet, "/api/v1/google/accounts/user-1", "", nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "google account is not connected", body["error"])
}

func TestDisconnectAlwaysClearsAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	env.tokens.accounts["user-1:outlook"] = domain.ConnectedAccount{UserID: "user-1", Provider: calendar.Outlook, AccessToken: "a"}

	w, body := env.do(t, http.MethodDelete, "/api/v1/outlook/accounts/user-1", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, body["revoked"])
	require.Empty(t, env.tokens.accounts)
}

func TestGoogleTokenShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "abc", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600,"scope":"calendar"}`))
	}))
	defer srv.Close()
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Google.TokenURL = srv.URL })

	w, body := env.do(t, http.MethodPost, "/api/v1/google/token", `{"code":"abc","redirect_uri":"https://app/cb"}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "at", body["access_token"])
	require.Equal(t, "rt", body["refresh_token"])
	require.Equal(t, "calendar", body["scope"])
	require.Contains(t, body, "expiry_date")
	require.NotContains(t, body, "expires_in")
}

func TestTokenRequiresCode(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/hubspot/token", `{"redirect_uri":"https://app/cb"}`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "code is required", body["error"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w, body := env.do(t, http.MethodGet, "/health", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", body["status"])
}

func TestHealthDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := handler.NewHealthHandler(map[string]repository.Pinger{
		"database": stubPinger{},
		"redis":    stubPinger{err: errors.New("connection refused")},
	})
	r := gin.New()
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "connection refused")
}
