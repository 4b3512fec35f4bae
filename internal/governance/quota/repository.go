package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles account_quotas PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quota Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOrCreate returns the account's quota row, creating one if it doesn't exist.
func (r *Repository) GetOrCreate(ctx context.Context, accountID uuid.UUID) (*AccountQuota, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO account_quotas (account_id) VALUES ($1) ON CONFLICT (account_id) DO NOTHING`, accountID)
	if err != nil {
		return nil, fmt.Errorf("ensuring account quota: %w", err)
	}

	var q AccountQuota
	err = r.pool.QueryRow(ctx,
		`SELECT account_id, llm_calls_today, outbound_today, last_daily_reset, updated_at
		 FROM account_quotas WHERE account_id = $1`, accountID,
	).Scan(&q.AccountID, &q.LLMCallsToday, &q.OutboundToday, &q.LastDailyReset, &q.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("fetching account quota: %w", err)
	}
	return &q, nil
}

// IncrementLLMCalls increments the daily LLM call counter.
func (r *Repository) IncrementLLMCalls(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE account_quotas
		 SET llm_calls_today = llm_calls_today + 1,
		     updated_at = NOW()
		 WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("incrementing llm call count: %w", err)
	}
	return nil
}

// IncrementOutbound increments the daily outbound message counter.
func (r *Repository) IncrementOutbound(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE account_quotas
		 SET outbound_today = outbound_today + 1,
		     updated_at = NOW()
		 WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("incrementing outbound count: %w", err)
	}
	return nil
}

// ResetDailyIfStale resets daily counters if last reset was more than 24h ago.
// Returns true if a reset was performed.
func (r *Repository) ResetDailyIfStale(ctx context.Context, accountID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE account_quotas
		 SET llm_calls_today = 0,
		     outbound_today = 0,
		     last_daily_reset = NOW(),
		     updated_at = NOW()
		 WHERE account_id = $1 AND last_daily_reset < NOW() - INTERVAL '24 hours'`, accountID)
	if err != nil {
		return false, fmt.Errorf("resetting daily quota: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordViolation appends a violation entry to the violations JSONB array.
func (r *Repository) RecordViolation(ctx context.Context, accountID uuid.UUID, violation string) error {
	entry := map[string]any{
		"type":      violation,
		"timestamp": time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling violation: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE account_quotas
		 SET violations = violations || $2::jsonb,
		     updated_at = NOW()
		 WHERE account_id = $1`, accountID, string(data))
	if err != nil {
		return fmt.Errorf("recording violation: %w", err)
	}
	return nil
}
