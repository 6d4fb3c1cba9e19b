package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/calendar-gateway/internal/domain"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
	"github.com/smallbiznis/calendar-gateway/internal/repository"
	"github.com/smallbiznis/calendar-gateway/migrations"
)

// Runs only when TEST_DATABASE_URL points at a disposable Postgres.
func newPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, migrations.Up(dsn, nil))
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresAccountRepo_UpsertKeepsRefreshToken(t *testing.T) {
	pool := newPool(t)
	repo := repository.NewPostgresAccountRepo(pool)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	first, err := repo.Upsert(ctx, domain.ConnectedAccount{
		UserID:       userID,
		Provider:     calendar.Google,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    &expiry,
		Scope:        "calendar",
	})
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	second, err := repo.Upsert(ctx, domain.ConnectedAccount{
		UserID:      userID,
		Provider:    calendar.Google,
		AccessToken: "access-2",
		ExpiresAt:   &expiry,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "access-2", second.AccessToken)
	require.Equal(t, "refresh-1", second.RefreshToken)
	require.Equal(t, "calendar", second.Scope)

	deleted, err := repo.DeleteByToken(ctx, calendar.Google, "refresh-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	_, err = repo.Get(ctx, userID, calendar.Google)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPostgresAccountRepo_UpdateTokens(t *testing.T) {
	pool := newPool(t)
	repo := repository.NewPostgresAccountRepo(pool)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()

	saved, err := repo.Upsert(ctx, domain.ConnectedAccount{UserID: userID, Provider: calendar.HubSpot, AccessToken: "a", RefreshToken: "r"})
	require.NoError(t, err)

	expiry := time.Now().Add(30 * time.Minute).UTC()
	updated, err := repo.UpdateTokens(ctx, saved.ID, domain.TokenUpdate{AccessToken: "b", ExpiresAt: expiry})
	require.NoError(t, err)
	require.Equal(t, "b", updated.AccessToken)
	require.Equal(t, "r", updated.RefreshToken)
	require.NotNil(t, updated.ExpiresAt)

	ok, err := repo.Delete(ctx, userID, calendar.HubSpot)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPostgresIntegrationLogRepo_Append(t *testing.T) {
	pool := newPool(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.NewPostgresIntegrationLogRepo(pool, node)

	err = repo.Append(context.Background(), domain.IntegrationLogEntry{
		Provider:        calendar.Outlook,
		Action:          "list_calendars",
		RequestPayload:  map[string]any{"calendarId": "primary"},
		ResponsePayload: map[string]any{"count": 2},
		Status:          domain.LogSuccess,
	})
	require.NoError(t, err)
}
