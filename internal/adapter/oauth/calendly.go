package oauth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/smallbiznis/calendar-gateway/internal/config"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

// Calendly authenticates its token and revoke endpoints with HTTP Basic client credentials.
type Calendly struct {
	flow
}

var _ Adapter = (*Calendly)(nil)

func NewCalendly(cfg config.ProviderConfig, client *http.Client) *Calendly {
	// Calendly grants access by app registration, not by scope.
	cfg.Scopes = nil
	return &Calendly{flow: newFlow(calendar.Calendly, cfg, oauth2.AuthStyleInHeader, client)}
}

func (c *Calendly) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return calendar.Required("token")
	}
	if err := c.requireClient(); err != nil {
		return err
	}
	auth := &basicAuth{username: c.cfg.ClientID, password: c.cfg.ClientSecret}
	return c.postForm(ctx, "revoke", c.cfg.RevokeURL, url.Values{"token": {token}}, auth)
}
