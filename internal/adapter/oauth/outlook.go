package oauth

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/smallbiznis/calendar-gateway/internal/config"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

// Outlook talks to the Microsoft identity platform v2 endpoints.
type Outlook struct {
	flow
}

var _ Adapter = (*Outlook)(nil)

func NewOutlook(cfg config.ProviderConfig, client *http.Client) *Outlook {
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = "common"
	}
	endpoint := microsoft.AzureADEndpoint(tenant)
	if cfg.AuthURL == "" {
		cfg.AuthURL = endpoint.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = endpoint.TokenURL
	}
	f := newFlow(calendar.Outlook, cfg, oauth2.AuthStyleInParams, client)
	f.authParams = []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("response_mode", "query")}
	if len(cfg.Scopes) > 0 {
		f.exchangeParams = []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("scope", strings.Join(cfg.Scopes, " "))}
	}
	return &Outlook{flow: f}
}

// Revoke is not offered by the Microsoft identity platform for delegated tokens.
func (o *Outlook) Revoke(context.Context, string) error {
	return calendar.Unsupported(calendar.Outlook, "token revocation")
}
