package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/calendar-gateway/internal/domain"
)

// PostgresIntegrationLogRepo implements IntegrationLogRepository.
type PostgresIntegrationLogRepo struct {
	db   *pgxpool.Pool
	node *snowflake.Node
}

func NewPostgresIntegrationLogRepo(pool *pgxpool.Pool, node *snowflake.Node) *PostgresIntegrationLogRepo {
	return &PostgresIntegrationLogRepo{db: pool, node: node}
}

const insertIntegrationLogSQL = `INSERT INTO integration_logs (id, user_id, provider, action, request_payload, response_payload, status, error_message, created_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`

func (r *PostgresIntegrationLogRepo) Append(ctx context.Context, entry domain.IntegrationLogEntry) error {
	if entry.ID == 0 && r.node != nil {
		entry.ID = r.node.Generate().Int64()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	request, err := encodePayload(entry.RequestPayload)
	if err != nil {
		return fmt.Errorf("encode request payload: %w", err)
	}
	response, err := encodePayload(entry.ResponsePayload)
	if err != nil {
		return fmt.Errorf("encode response payload: %w", err)
	}
	_, err = r.db.Exec(ctx, insertIntegrationLogSQL,
		entry.ID,
		entry.UserID,
		string(entry.Provider),
		entry.Action,
		request,
		response,
		string(entry.Status),
		entry.ErrorMessage,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert integration log: %w", err)
	}
	return nil
}

// encodePayload returns nil for an absent payload so the column stays NULL.
func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}
