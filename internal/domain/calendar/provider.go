package calendar

import (
	"fmt"
	"strings"
)

// Provider identifies one external calendar or CRM service.
type Provider string

const (
	Google   Provider = "google"
	Outlook  Provider = "outlook"
	Calendly Provider = "calendly"
	HubSpot  Provider = "hubspot"
)

// Providers lists every supported provider in routing order.
var Providers = []Provider{Google, Outlook, Calendly, HubSpot}

// ParseProvider resolves a provider name, case-insensitively.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	if !p.Valid() {
		return "", fmt.Errorf("provider %q: %w", name, ErrUnknownProvider)
	}
	return p, nil
}

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	switch p {
	case Google, Outlook, Calendly, HubSpot:
		return true
	}
	return false
}

func (p Provider) String() string { return string(p) }

// DisplayName is the human readable provider name.
func (p Provider) DisplayName() string {
	switch p {
	case Google:
		return "Google"
	case Outlook:
		return "Outlook"
	case Calendly:
		return "Calendly"
	case HubSpot:
		return "HubSpot"
	}
	return string(p)
}
