package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/calendar-gateway/internal/config"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

func TestAuthorizationURL_ContainsRedirectAndClient(t *testing.T) {
	adapter := NewGoogle(config.ProviderConfig{ClientID: "google-client", ClientSecret: "secret"}, nil)

	authURL, err := adapter.AuthorizationURL("https://app/cb", "")
	require.NoError(t, err)
	require.Contains(t, authURL, "redirect_uri=https%3A%2F%2Fapp%2Fcb")
	require.Contains(t, authURL, "client_id=google-client")
	require.Contains(t, authURL, "response_type=code")
	require.Contains(t, authURL, "access_type=offline")
	require.Contains(t, authURL, "prompt=consent")
	require.NotContains(t, authURL, "state=")
}

func TestAuthorizationURL_RequiresRedirect(t *testing.T) {
	for _, adapter := range []Adapter{
		NewGoogle(config.ProviderConfig{ClientID: "id"}, nil),
		NewOutlook(config.ProviderConfig{ClientID: "id"}, nil),
		NewCalendly(config.ProviderConfig{ClientID: "id", AuthURL: "https://auth.calendly.com/oauth/authorize"}, nil),
		NewHubSpot(config.ProviderConfig{ClientID: "id", AuthURL: "https://app.hubspot.com/oauth/authorize"}, nil),
	} {
		_, err := adapter.AuthorizationURL("  ", "")
		require.Error(t, err, adapter.Provider())
		require.True(t, errors.Is(err, calendar.ErrValidation), adapter.Provider())
		require.True(t, errors.Is(err, calendar.ErrConfiguration), adapter.Provider())
	}
}

func TestAuthorizationURL_FallsBackToConfiguredRedirect(t *testing.T) {
	adapter := NewOutlook(config.ProviderConfig{
		ClientID:    "outlook-client",
		RedirectURI: "https://app/outlook/cb",
		TenantID:    "contoso",
		Scopes:      []string{"Calendars.ReadWrite", "offline_access"},
	}, nil)

	authURL, err := adapter.AuthorizationURL("", "state-1")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, "/contoso/oauth2/v2.0/authorize", parsed.Path)
	q := parsed.Query()
	require.Equal(t, "https://app/outlook/cb", q.Get("redirect_uri"))
	require.Equal(t, "query", q.Get("response_mode"))
	require.Equal(t, "Calendars.ReadWrite offline_access", q.Get("scope"))
	require.Equal(t, "state-1", q.Get("state"))
}

func TestAuthorizationURL_RequiresClientID(t *testing.T) {
	adapter := NewHubSpot(config.ProviderConfig{AuthURL: "https://app.hubspot.com/oauth/authorize"}, nil)
	_, err := adapter.AuthorizationURL("https://app/cb", "")
	require.ErrorIs(t, err, calendar.ErrConfiguration)
	require.NotErrorIs(t, err, calendar.ErrValidation)
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "/token", r.URL.Path)
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.Equal(t, "the-code", r.PostForm.Get("code"))
		require.Equal(t, "https://app/cb", r.PostForm.Get("redirect_uri"))
		require.Equal(t, "client", r.PostForm.Get("client_id"))
		require.Equal(t, "secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600,"token_type":"Bearer","scope":"calendar"}`))
	}))
	defer srv.Close()

	adapter := NewGoogle(config.ProviderConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/token",
	}, srv.Client())

	before := time.Now()
	tok, err := adapter.ExchangeCode(context.Background(), "the-code", "https://app/cb")
	require.NoError(t, err)
	require.Equal(t, "at-1", tok.AccessToken)
	require.Equal(t, "rt-1", tok.RefreshToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Equal(t, "calendar", tok.Scope)
	require.Equal(t, int64(3600), tok.ExpiresIn)
	require.True(t, tok.Expiry.After(before))
}

func TestExchangeCode_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Bad Request"}`))
	}))
	defer srv.Close()

	adapter := NewHubSpot(config.ProviderConfig{ClientID: "client", ClientSecret: "secret", TokenURL: srv.URL}, srv.Client())

	_, err := adapter.ExchangeCode(context.Background(), "code", "https://app/cb")
	require.ErrorIs(t, err, calendar.ErrUpstreamAuth)

	var upstream *calendar.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, http.StatusBadRequest, upstream.Status)
	require.Equal(t, "invalid_grant", upstream.Code)
	require.Equal(t, calendar.HubSpot, upstream.Provider)
}

func TestParseErrorBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		code    string
		message string
	}{
		{"oauth", `{"error":"invalid_grant","error_description":"Bad Request"}`, "invalid_grant", "Bad Request"},
		{"graph", `{"error":{"code":"InvalidAuthenticationToken","message":"expired"}}`, "InvalidAuthenticationToken", "expired"},
		{"calendly", `{"title":"Unauthenticated","message":"token revoked"}`, "", "token revoked"},
		{"plain", "upstream unavailable\n", "", "upstream unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, message := parseErrorBody([]byte(tc.body))
			require.Equal(t, tc.code, code)
			require.Equal(t, tc.message, message)
		})
	}
}

func TestExchangeCode_CalendlyUsesBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "cal-client", user)
		require.Equal(t, "cal-secret", pass)
		require.NoError(t, r.ParseForm())
		require.Empty(t, r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":7200,"token_type":"Bearer","owner":"https://api.calendly.com/users/U1","organization":"https://api.calendly.com/organizations/O1"}`))
	}))
	defer srv.Close()

	adapter := NewCalendly(config.ProviderConfig{ClientID: "cal-client", ClientSecret: "cal-secret", TokenURL: srv.URL}, srv.Client())
	tok, err := adapter.ExchangeCode(context.Background(), "code", "https://app/cb")
	require.NoError(t, err)
	require.Equal(t, "https://api.calendly.com/users/U1", tok.AccountID)
	require.Equal(t, "https://api.calendly.com/organizations/O1", tok.Raw["organization"])
}

func TestExchangeCode_OutlookSendsScope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "Calendars.ReadWrite offline_access User.Read", r.PostForm.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	adapter := NewOutlook(config.ProviderConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     srv.URL,
		Scopes:       []string{"Calendars.ReadWrite", "offline_access", "User.Read"},
	}, srv.Client())
	tok, err := adapter.ExchangeCode(context.Background(), "code", "https://app/cb")
	require.NoError(t, err)
	require.Equal(t, "at", tok.AccessToken)
}

func TestExchangeCode_RequiresCode(t *testing.T) {
	adapter := NewGoogle(config.ProviderConfig{ClientID: "client"}, nil)
	_, err := adapter.ExchangeCode(context.Background(), "", "https://app/cb")
	require.ErrorIs(t, err, calendar.ErrValidation)
}

func TestRefresh_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "stored-refresh", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":3599,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	adapter := NewGoogle(config.ProviderConfig{ClientID: "client", ClientSecret: "secret", TokenURL: srv.URL}, srv.Client())
	tok, err := adapter.Refresh(context.Background(), "stored-refresh")
	require.NoError(t, err)
	require.Equal(t, "fresh", tok.AccessToken)
	require.Equal(t, "stored-refresh", tok.RefreshToken)
}

func TestRefresh_RotatedRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"rotated","expires_in":1800}`))
	}))
	defer srv.Close()

	adapter := NewHubSpot(config.ProviderConfig{ClientID: "client", ClientSecret: "secret", TokenURL: srv.URL}, srv.Client())
	tok, err := adapter.Refresh(context.Background(), "old")
	require.NoError(t, err)
	require.Equal(t, "rotated", tok.RefreshToken)
	require.Equal(t, int64(1800), tok.ExpiresIn)
}

func TestRevoke(t *testing.T) {
	t.Run("outlook is unsupported", func(t *testing.T) {
		err := NewOutlook(config.ProviderConfig{ClientID: "client"}, nil).Revoke(context.Background(), "token")
		require.ErrorIs(t, err, calendar.ErrUnsupported)
	})

	t.Run("google posts token", func(t *testing.T) {
		var got string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, r.ParseForm())
			got = r.PostForm.Get("token")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		adapter := NewGoogle(config.ProviderConfig{ClientID: "client", RevokeURL: srv.URL}, srv.Client())
		require.NoError(t, adapter.Revoke(context.Background(), "tok-1"))
		require.Equal(t, "tok-1", got)
	})

	t.Run("google failure is upstream auth error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_token","error_description":"Token expired or revoked"}`))
		}))
		defer srv.Close()

		adapter := NewGoogle(config.ProviderConfig{ClientID: "client", RevokeURL: srv.URL}, srv.Client())
		err := adapter.Revoke(context.Background(), "tok-1")
		require.ErrorIs(t, err, calendar.ErrUpstreamAuth)
		require.Contains(t, err.Error(), "Token expired or revoked")
	})

	t.Run("calendly uses basic auth", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _, ok := r.BasicAuth()
			require.True(t, ok)
			require.Equal(t, "cal", user)
			require.NoError(t, r.ParseForm())
			require.Equal(t, "tok", r.PostForm.Get("token"))
		}))
		defer srv.Close()

		adapter := NewCalendly(config.ProviderConfig{ClientID: "cal", ClientSecret: "s", RevokeURL: srv.URL}, srv.Client())
		require.NoError(t, adapter.Revoke(context.Background(), "tok"))
	})

	t.Run("hubspot deletes refresh token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodDelete, r.Method)
			require.Equal(t, "/oauth/v1/refresh-tokens/rt-9", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		adapter := NewHubSpot(config.ProviderConfig{ClientID: "client", RevokeURL: srv.URL + "/oauth/v1/refresh-tokens"}, srv.Client())
		require.NoError(t, adapter.Revoke(context.Background(), "rt-9"))
	})
}

func TestSetFor(t *testing.T) {
	set := NewSet(config.Config{}, nil)
	for _, p := range calendar.Providers {
		adapter, err := set.For(p)
		require.NoError(t, err)
		require.Equal(t, p, adapter.Provider())
	}
	_, err := set.For(calendar.Provider("zoom"))
	require.ErrorIs(t, err, calendar.ErrUnknownProvider)
}
