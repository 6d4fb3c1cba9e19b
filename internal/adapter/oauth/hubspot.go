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

// HubSpot revokes by deleting the refresh token resource.
type HubSpot struct {
	flow
}

var _ Adapter = (*HubSpot)(nil)

func NewHubSpot(cfg config.ProviderConfig, client *http.Client) *HubSpot {
	return &HubSpot{flow: newFlow(calendar.HubSpot, cfg, oauth2.AuthStyleInParams, client)}
}

// Revoke expects a refresh token; HubSpot has no access token revocation.
func (h *HubSpot) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return calendar.Required("token")
	}
	endpoint := strings.TrimRight(h.cfg.RevokeURL, "/") + "/" + url.PathEscape(token)
	return h.delete(ctx, "revoke", endpoint)
}
