package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/calendar-gateway/internal/domain"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
	"github.com/smallbiznis/calendar-gateway/internal/domain/oauth"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("repository: not found")

// AccountRepository persists one credential row per (user, provider).
type AccountRepository interface {
	// Upsert inserts or replaces the row for (UserID, Provider). An empty
	// RefreshToken keeps the stored one.
	Upsert(ctx context.Context, account domain.ConnectedAccount) (domain.ConnectedAccount, error)
	Get(ctx context.Context, userID string, provider calendar.Provider) (domain.ConnectedAccount, error)
	UpdateTokens(ctx context.Context, id int64, update domain.TokenUpdate) (domain.ConnectedAccount, error)
	Delete(ctx context.Context, userID string, provider calendar.Provider) (bool, error)
	// DeleteByToken removes every row of provider holding token as access or refresh token.
	DeleteByToken(ctx context.Context, provider calendar.Provider, token string) (int64, error)
}

// IntegrationLogRepository appends audit entries.
type IntegrationLogRepository interface {
	Append(ctx context.Context, entry domain.IntegrationLogEntry) error
}

// OAuthStateStore persists short-lived authorization state.
type OAuthStateStore interface {
	SaveState(ctx context.Context, key string, data oauth.State, ttl time.Duration) error
	// ConsumeState loads and removes the state in one step. Unknown keys return nil.
	ConsumeState(ctx context.Context, key string) (*oauth.State, error)
}

// RefreshLock serializes token refreshes across instances.
type RefreshLock interface {
	// Acquire returns a release func when the lock was taken, or ok=false when
	// another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Pinger reports backend reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
