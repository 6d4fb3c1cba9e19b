package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/smallbiznis/calendar-gateway/internal/config"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
	domainoauth "github.com/smallbiznis/calendar-gateway/internal/domain/oauth"
)

// Adapter wraps one provider's authorize, token, refresh and revoke flow.
type Adapter interface {
	Provider() calendar.Provider
	AuthorizationURL(redirectURI, state string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (*domainoauth.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*domainoauth.Token, error)
	Revoke(ctx context.Context, token string) error
}

// Set holds the adapter of every supported provider.
type Set struct {
	Google   Adapter
	Outlook  Adapter
	Calendly Adapter
	HubSpot  Adapter
}

// NewSet builds all four adapters from configuration.
func NewSet(cfg config.Config, client *http.Client) *Set {
	return &Set{
		Google:   NewGoogle(cfg.Google, client),
		Outlook:  NewOutlook(cfg.Outlook, client),
		Calendly: NewCalendly(cfg.Calendly, client),
		HubSpot:  NewHubSpot(cfg.HubSpot, client),
	}
}

// For selects the adapter of p.
func (s *Set) For(p calendar.Provider) (Adapter, error) {
	var adapter Adapter
	switch p {
	case calendar.Google:
		adapter = s.Google
	case calendar.Outlook:
		adapter = s.Outlook
	case calendar.Calendly:
		adapter = s.Calendly
	case calendar.HubSpot:
		adapter = s.HubSpot
	default:
		return nil, fmt.Errorf("oauth adapter %q: %w", p, calendar.ErrUnknownProvider)
	}
	if adapter == nil {
		return nil, &calendar.ConfigurationError{Provider: p, Setting: "oauth adapter"}
	}
	return adapter, nil
}

// flow is the x/oauth2 backed part shared by every adapter.
type flow struct {
	providerClient
	cfg            config.ProviderConfig
	oauth          oauth2.Config
	authParams     []oauth2.AuthCodeOption
	exchangeParams []oauth2.AuthCodeOption
}

func newFlow(provider calendar.Provider, cfg config.ProviderConfig, style oauth2.AuthStyle, client *http.Client) flow {
	return flow{
		providerClient: newProviderClient(provider, client),
		cfg:            cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: style,
			},
			Scopes: cfg.Scopes,
		},
	}
}

func (f flow) Provider() calendar.Provider { return f.provider }

func (f flow) redirectURI(requested string) (string, error) {
	redirect := strings.TrimSpace(requested)
	if redirect == "" {
		redirect = strings.TrimSpace(f.cfg.RedirectURI)
	}
	if redirect == "" {
		return "", &calendar.ValidationError{
			Field:   "redirect_uri",
			Message: "Redirect URI not provided and not configured in environment",
			Err:     &calendar.ConfigurationError{Provider: f.provider, Setting: "redirect_uri"},
		}
	}
	return redirect, nil
}

func (f flow) config(redirectURI string) *oauth2.Config {
	cfg := f.oauth
	cfg.RedirectURL = redirectURI
	return &cfg
}

func (f flow) requireClient() error {
	if strings.TrimSpace(f.cfg.ClientID) == "" {
		return &calendar.ConfigurationError{Provider: f.provider, Setting: "client_id"}
	}
	return nil
}

func (f flow) AuthorizationURL(redirectURI, state string) (string, error) {
	redirect, err := f.redirectURI(redirectURI)
	if err != nil {
		return "", err
	}
	if err := f.requireClient(); err != nil {
		return "", err
	}
	return f.config(redirect).AuthCodeURL(state, f.authParams...), nil
}

func (f flow) ExchangeCode(ctx context.Context, code, redirectURI string) (*domainoauth.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, calendar.Required("code")
	}
	if err := f.requireClient(); err != nil {
		return nil, err
	}
	// The token endpoint must see the redirect used at authorization; fall back to
	// the configured one and let the provider reject a mismatch.
	redirect, _ := f.redirectURI(redirectURI)
	tok, err := f.config(redirect).Exchange(f.withClient(ctx), code, f.exchangeParams...)
	if err != nil {
		return nil, f.upstreamError("exchange_code", err)
	}
	return convertToken(tok), nil
}

func (f flow) Refresh(ctx context.Context, refreshToken string) (*domainoauth.Token, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, calendar.Required("refresh_token")
	}
	if err := f.requireClient(); err != nil {
		return nil, err
	}
	src := f.config("").TokenSource(f.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, f.upstreamError("refresh", err)
	}
	out := convertToken(tok)
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

var extraFields = []string{"scope", "expires_in", "id_token", "owner", "organization", "created_at", "ext_expires_in"}

func convertToken(tok *oauth2.Token) *domainoauth.Token {
	raw := make(map[string]any, len(extraFields))
	for _, key := range extraFields {
		if v := tok.Extra(key); v != nil {
			raw[key] = v
		}
	}
	out := &domainoauth.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Scope:        stringValue(raw["scope"]),
		ExpiresIn:    int64Value(raw["expires_in"]),
		Expiry:       tok.Expiry,
		AccountID:    stringValue(raw["owner"]),
		Raw:          raw,
	}
	return out
}
