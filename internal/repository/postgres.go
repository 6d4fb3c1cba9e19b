package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/calendar-gateway/internal/domain"
	"github.com/smallbiznis/calendar-gateway/internal/domain/calendar"
)

// Compile-time interface assertions.
var (
	_ AccountRepository        = (*PostgresAccountRepo)(nil)
	_ IntegrationLogRepository = (*PostgresIntegrationLogRepo)(nil)
	_ Pinger                   = (*PostgresAccountRepo)(nil)
)

// PostgresAccountRepo implements AccountRepository.
type PostgresAccountRepo struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPostgresAccountRepo(pool *pgxpool.Pool) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: pool, now: time.Now}
}

const accountColumns = `id, user_id, provider, external_account_id, access_token, refresh_token, expires_at, scope, created_at, updated_at`

const upsertAccountSQL = `INSERT INTO connected_accounts (user_id, provider, external_account_id, access_token, refresh_token, expires_at, scope, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $8)
ON CONFLICT (user_id, provider) DO UPDATE SET
    external_account_id = COALESCE(NULLIF(EXCLUDED.external_account_id, ''), connected_accounts.external_account_id),
    access_token = EXCLUDED.access_token,
    refresh_token = COALESCE(EXCLUDED.refresh_token, connected_accounts.refresh_token),
    expires_at = EXCLUDED.expires_at,
    scope = COALESCE(NULLIF(EXCLUDED.scope, ''), connected_accounts.scope),
    updated_at = EXCLUDED.updated_at
RETURNING ` + accountColumns

func (r *PostgresAccountRepo) Upsert(ctx context.Context, account domain.ConnectedAccount) (domain.ConnectedAccount, error) {
	row := r.db.QueryRow(ctx, upsertAccountSQL,
		account.UserID,
		string(account.Provider),
		account.ExternalAccountID,
		account.AccessToken,
		account.RefreshToken,
		account.ExpiresAt,
		account.Scope,
		r.now().UTC(),
	)
	saved, err := scanAccount(row)
	if err != nil {
		return domain.ConnectedAccount{}, fmt.Errorf("upsert connected account: %w", err)
	}
	return saved, nil
}

const getAccountSQL = `SELECT ` + accountColumns + ` FROM connected_accounts WHERE user_id = $1 AND provider = $2`

func (r *PostgresAccountRepo) Get(ctx context.Context, userID string, provider calendar.Provider) (domain.ConnectedAccount, error) {
	account, err := scanAccount(r.db.QueryRow(ctx, getAccountSQL, userID, string(provider)))
	if err != nil {
		return domain.ConnectedAccount{}, fmt.Errorf("get connected account: %w", err)
	}
	return account, nil
}

const updateTokensSQL = `UPDATE connected_accounts SET
    access_token = $2,
    refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
    expires_at = $4,
    scope = COALESCE(NULLIF($5, ''), scope),
    updated_at = $6
WHERE id = $1
RETURNING ` + accountColumns

func (r *PostgresAccountRepo) UpdateTokens(ctx context.Context, id int64, update domain.TokenUpdate) (domain.ConnectedAccount, error) {
	row := r.db.QueryRow(ctx, updateTokensSQL, id, update.AccessToken, update.RefreshToken, update.ExpiresAt.UTC(), update.Scope, r.now().UTC())
	account, err := scanAccount(row)
	if err != nil {
		return domain.ConnectedAccount{}, fmt.Errorf("update tokens: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepo) Delete(ctx context.Context, userID string, provider calendar.Provider) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM connected_accounts WHERE user_id = $1 AND provider = $2`, userID, string(provider))
	if err != nil {
		return false, fmt.Errorf("delete connected account: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresAccountRepo) DeleteByToken(ctx context.Context, provider calendar.Provider, token string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM connected_accounts WHERE provider = $1 AND (access_token = $2 OR refresh_token = $2)`,
		string(provider), token)
	if err != nil {
		return 0, fmt.Errorf("delete connected account by token: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks database connectivity.
func (r *PostgresAccountRepo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanAccount(row pgx.Row) (domain.ConnectedAccount, error) {
	var (
		account    domain.ConnectedAccount
		provider   string
		externalID *string
		refresh    *string
		scope      *string
	)
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&provider,
		&externalID,
		&account.AccessToken,
		&refresh,
		&account.ExpiresAt,
		&scope,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ConnectedAccount{}, ErrNotFound
		}
		return domain.ConnectedAccount{}, err
	}
	account.Provider = calendar.Provider(provider)
	if externalID != nil {
		account.ExternalAccountID = *externalID
	}
	if refresh != nil {
		account.RefreshToken = *refresh
	}
	if scope != nil {
		account.Scope = *scope
	}
	return account, nil
}
