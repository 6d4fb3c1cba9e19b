package oauth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/smallbiznis/calendar-gateway/internal/config"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

// Google requests offline access with forced consent so a refresh token is always issued.
type Google struct {
	flow
}

var _ Adapter = (*Google)(nil)

func NewGoogle(cfg config.ProviderConfig, client *http.Client) *Google {
	if cfg.AuthURL == "" {
		cfg.AuthURL = google.Endpoint.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = google.Endpoint.TokenURL
	}
	if cfg.RevokeURL == "" {
		cfg.RevokeURL = googleRevokeURL
	}
	f := newFlow(calendar.Google, cfg, oauth2.AuthStyleInParams, client)
	f.authParams = []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}
	return &Google{flow: f}
}

// Revoke invalidates an access or refresh token at Google.
func (g *Google) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return calendar.Required("token")
	}
	return g.postForm(ctx, "revoke", g.cfg.RevokeURL, url.Values{"token": {token}}, nil)
}
