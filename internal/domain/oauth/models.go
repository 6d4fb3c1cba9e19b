package oauth

import "time"

// Token models the response from a provider token endpoint.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
	Expiry       time.Time
	// AccountID is the provider-side account identifier, when the token response carries one.
	AccountID string
	Raw       map[string]any
}

// ExpiresAt resolves the absolute expiry, preferring the provider-supplied
// instant, then expires_in, then fallback.
func (t *Token) ExpiresAt(now time.Time, fallback time.Duration) time.Time {
	if !t.Expiry.IsZero() && t.Expiry.After(now) {
		return t.Expiry
	}
	if t.ExpiresIn > 0 {
		return now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return now.Add(fallback)
}

// State ties an authorization redirect to the user that started it.
type State struct {
	State       string    `json:"state"`
	Provider    string    `json:"provider"`
	UserID      string    `json:"user_id"`
	RedirectURI string    `json:"redirect_uri"`
	CreatedAt   time.Time `json:"created_at"`
}
