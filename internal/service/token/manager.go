// Package token keeps stored provider credentials usable.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	oauthadapter "github.com/smallbiznis/calendar-gateway/internal/adapter/oauth"
	"github.com/smallbiznis/calendar-gateway/internal/config"
	"github.com/smallbiznis/calendar-gateway/internal/domain"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
	"github.com/smallbiznis/calendar-gateway/internal/domain/oauth"
	"github.com/smallbiznis/calendar-gateway/internal/metrics"
	"github.com/smallbiznis/calendar-gateway/internal/repository"
)

// DefaultExpiry applies when a provider reports no token lifetime.
const DefaultExpiry = time.Hour

const pollInterval = 200 * time.Millisecond

// Adapters resolves the OAuth adapter of a provider.
type Adapters interface {
	For(p calendar.Provider) (oauthadapter.Adapter, error)
}

// Manager loads, refreshes and stores ConnectedAccount credentials.
type Manager struct {
	accounts repository.AccountRepository
	adapters Adapters
	lock     repository.RefreshLock
	group    singleflight.Group

	skew     time.Duration
	lockTTL  time.Duration
	lockWait time.Duration
	poll     time.Duration
	now      func() time.Time

	logger *zap.Logger
	tracer trace.Tracer
}

// NewManager wires dependencies. lock may be nil for single instance deployments.
func NewManager(accounts repository.AccountRepository, adapters Adapters, lock repository.RefreshLock, cfg config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		accounts: accounts,
		adapters: adapters,
		lock:     lock,
		skew:     cfg.TokenRefreshSkew,
		lockTTL:  cfg.RefreshLockTTL,
		lockWait: cfg.RefreshLockWait,
		poll:     pollInterval,
		now:      time.Now,
		logger:   logger,
		tracer:   otel.Tracer("github.com/smallbiznis/calendar-gateway/internal/service/token"),
	}
}

// WithClock overrides the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Account returns the stored row or ErrNotConnected.
func (m *Manager) Account(ctx context.Context, userID string, provider calendar.Provider) (domain.ConnectedAccount, error) {
	account, err := m.accounts.Get(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ConnectedAccount{}, fmt.Errorf("%s account for user %s: %w", provider, userID, calendar.ErrNotConnected)
		}
		return domain.ConnectedAccount{}, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

// AccessToken returns a usable access token, refreshing it when it expires
// within the configured skew.
func (m *Manager) AccessToken(ctx context.Context, userID string, provider calendar.Provider) (string, error) {
	ctx, span := m.startSpan(ctx, "TokenManager.AccessToken")
	defer span.End()
	span.SetAttributes(attribute.String("provider", string(provider)))

	account, err := m.Account(ctx, userID, provider)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if account.Valid(m.now(), m.skew) {
		return account.AccessToken, nil
	}

	key := userID + ":" + string(provider)
	result, err, shared := m.group.Do(key, func() (any, error) {
		return m.refreshLocked(context.WithoutCancel(ctx), key, account)
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	refreshed := result.(domain.ConnectedAccount)
	if shared {
		m.log().Debug("token refresh shared", zap.String("provider", string(provider)), zap.String("user_id", userID))
	}
	return refreshed.AccessToken, nil
}

// refreshLocked refreshes under the distributed lock. When another instance
// holds it, the stored row is polled until it turns valid or the wait budget
// runs out; the caller then refreshes on its own.
func (m *Manager) refreshLocked(ctx context.Context, key string, account domain.ConnectedAccount) (domain.ConnectedAccount, error) {
	// A flight that finished after our first read already stored a fresh token.
	if current, err := m.accounts.Get(ctx, account.UserID, account.Provider); err == nil {
		if current.Valid(m.now(), m.skew) {
			return current, nil
		}
		account = current
	}
	if m.lock == nil {
		return m.refresh(ctx, account)
	}
	release, ok, err := m.lock.Acquire(ctx, key, m.lockTTL)
	if err != nil {
		m.log().Warn("refresh lock unavailable", zap.String("key", key), zap.Error(err))
		return m.refresh(ctx, account)
	}
	if ok {
		defer func() {
			if err := release(ctx); err != nil {
				m.log().Warn("refresh lock release failed", zap.String("key", key), zap.Error(err))
			}
		}()
		// Another holder may have finished between our read and the lock.
		if current, err := m.accounts.Get(ctx, account.UserID, account.Provider); err == nil && current.Valid(m.now(), m.skew) {
			return current, nil
		}
		return m.refresh(ctx, account)
	}

	deadline := m.now().Add(m.lockWait)
	for m.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return domain.ConnectedAccount{}, ctx.Err()
		case <-time.After(m.poll):
		}
		current, err := m.accounts.Get(ctx, account.UserID, account.Provider)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ConnectedAccount{}, fmt.Errorf("%s account for user %s: %w", account.Provider, account.UserID, calendar.ErrNotConnected)
			}
			continue
		}
		if current.Valid(m.now(), m.skew) {
			return current, nil
		}
	}
	m.log().Warn("refresh lock wait exceeded, refreshing anyway", zap.String("key", key))
	return m.refresh(ctx, account)
}

func (m *Manager) refresh(ctx context.Context, account domain.ConnectedAccount) (domain.ConnectedAccount, error) {
	provider := account.Provider
	if account.RefreshToken == "" {
		return domain.ConnectedAccount{}, fmt.Errorf("%s account for user %s has no refresh token: %w", provider, account.UserID, calendar.ErrNotConnected)
	}
	adapter, err := m.adapters.For(provider)
	if err != nil {
		return domain.ConnectedAccount{}, err
	}
	tok, err := adapter.Refresh(ctx, account.RefreshToken)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(string(provider), "failed").Inc()
		m.log().Warn("token refresh failed",
			zap.String("provider", string(provider)),
			zap.String("user_id", account.UserID),
			zap.Error(err),
		)
		return domain.ConnectedAccount{}, err
	}
	metrics.TokenRefreshTotal.WithLabelValues(string(provider), "success").Inc()

	now := m.now()
	update := domain.TokenUpdate{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt(now, DefaultExpiry),
		Scope:        tok.Scope,
	}
	if update.RefreshToken == "" {
		update.RefreshToken = account.RefreshToken
	}
	saved, err := m.accounts.UpdateTokens(ctx, account.ID, update)
	if err != nil {
		return domain.ConnectedAccount{}, fmt.Errorf("persist refreshed token: %w", err)
	}
	if lifetime := update.ExpiresAt.Sub(now); lifetime <= m.skew {
		m.log().Warn("refreshed token lifetime is shorter than the refresh skew",
			zap.String("provider", string(provider)),
			zap.String("user_id", account.UserID),
			zap.Duration("lifetime", lifetime),
			zap.Duration("skew", m.skew),
		)
	}
	m.log().Info("token refreshed",
		zap.String("provider", string(provider)),
		zap.String("user_id", account.UserID),
		zap.Time("expires_at", update.ExpiresAt),
	)
	return saved, nil
}

// Store upserts the credentials obtained from a code exchange.
func (m *Manager) Store(ctx context.Context, userID string, provider calendar.Provider, tok *oauth.Token) (domain.ConnectedAccount, error) {
	if userID == "" {
		return domain.ConnectedAccount{}, calendar.Required("user_id")
	}
	if tok == nil || tok.AccessToken == "" {
		return domain.ConnectedAccount{}, calendar.Required("access_token")
	}
	expiresAt := tok.ExpiresAt(m.now(), DefaultExpiry)
	account, err := m.accounts.Upsert(ctx, domain.ConnectedAccount{
		UserID:            userID,
		Provider:          provider,
		ExternalAccountID: tok.AccountID,
		AccessToken:       tok.AccessToken,
		RefreshToken:      tok.RefreshToken,
		ExpiresAt:         &expiresAt,
		Scope:             tok.Scope,
	})
	if err != nil {
		return domain.ConnectedAccount{}, err
	}
	return account, nil
}

// Forget removes the stored row. It reports whether one existed.
func (m *Manager) Forget(ctx context.Context, userID string, provider calendar.Provider) (bool, error) {
	return m.accounts.Delete(ctx, userID, provider)
}

// ForgetToken removes every stored row of provider holding token.
func (m *Manager) ForgetToken(ctx context.Context, provider calendar.Provider, token string) (int64, error) {
	return m.accounts.DeleteByToken(ctx, provider, token)
}

func (m *Manager) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if m == nil || m.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return m.tracer.Start(ctx, name)
}

func (m *Manager) log() *zap.Logger {
	if m != nil && m.logger != nil {
		return m.logger
	}
	return zap.L()
}
