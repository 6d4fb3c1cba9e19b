package domain

import (
	"time"

	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

// ConnectedAccount is the stored credential set for one (user, provider) pair.
type ConnectedAccount struct {
	ID                int64
	UserID            string
	Provider          calendar.Provider
	ExternalAccountID string
	AccessToken       string
	RefreshToken      string
	ExpiresAt         *time.Time
	Scope             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Valid reports whether the access token is usable at now plus skew. The skew
// is capped at half the token lifetime counted from UpdatedAt, so a token that
// lives shorter than the skew is still used before the next refresh.
func (a ConnectedAccount) Valid(now time.Time, skew time.Duration) bool {
	if a.AccessToken == "" || a.ExpiresAt == nil {
		return false
	}
	return a.ExpiresAt.After(now.Add(a.effectiveSkew(skew)))
}

func (a ConnectedAccount) effectiveSkew(skew time.Duration) time.Duration {
	if a.UpdatedAt.IsZero() {
		return skew
	}
	if lifetime := a.ExpiresAt.Sub(a.UpdatedAt); lifetime > 0 && skew > lifetime/2 {
		return lifetime / 2
	}
	return skew
}

// TokenUpdate is the mutable part of a ConnectedAccount after a refresh.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// LogStatus is the outcome recorded for an integration action.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
)

// IntegrationLogEntry is an append-only audit record.
type IntegrationLogEntry struct {
	ID              int64
	UserID          string
	Provider        calendar.Provider
	Action          string
	RequestPayload  any
	ResponsePayload any
	Status          LogStatus
	ErrorMessage    string
	CreatedAt       time.Time
}
