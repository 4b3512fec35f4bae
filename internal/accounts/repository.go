package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, row *AccountRow) error
	GetByID(ctx context.Context, id uuid.UUID) (*AccountRow, error)
	GetByChannelAddr(ctx context.Context, addr string) (*AccountRow, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*AccountRow, error)
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
	Update(ctx context.Context, row *AccountRow) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const accountColumns = `id, owner_operator_id, channel_addr, profile, timezone, automation_level,
	quiet_start_hour, quiet_end_hour, channel_config, governance, created_at, updated_at, deleted_at`

func (r *postgresRepository) Create(ctx context.Context, row *AccountRow) error {
	query := `
		INSERT INTO accounts (id, owner_operator_id, channel_addr, profile, timezone, automation_level,
			quiet_start_hour, quiet_end_hour, channel_config, governance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		row.ID, row.OwnerOperatorID, row.ChannelAddr,
		row.Profile, row.Timezone, row.AutomationLevel,
		row.QuietStartHour, row.QuietEndHour,
		row.ChannelConfig, row.Governance,
		row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

func (r *postgresRepository) scanRow(scanner pgx.Row) (*AccountRow, error) {
	row := &AccountRow{}
	err := scanner.Scan(
		&row.ID, &row.OwnerOperatorID, &row.ChannelAddr,
		&row.Profile, &row.Timezone, &row.AutomationLevel,
		&row.QuietStartHour, &row.QuietEndHour,
		&row.ChannelConfig, &row.Governance,
		&row.CreatedAt, &row.UpdatedAt, &row.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning account row: %w", err)
	}
	return row, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*AccountRow, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND deleted_at IS NULL`
	return r.scanRow(r.pool.QueryRow(ctx, query, id))
}

func (r *postgresRepository) GetByChannelAddr(ctx context.Context, addr string) (*AccountRow, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE channel_addr = $1 AND deleted_at IS NULL`
	return r.scanRow(r.pool.QueryRow(ctx, query, addr))
}

func (r *postgresRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*AccountRow, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE owner_operator_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []*AccountRow
	for rows.Next() {
		row, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *postgresRepository) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE owner_operator_id = $1 AND deleted_at IS NULL`,
		ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) Update(ctx context.Context, row *AccountRow) error {
	query := `
		UPDATE accounts
		SET profile = $2, timezone = $3, automation_level = $4, quiet_start_hour = $5,
			quiet_end_hour = $6, channel_config = $7, governance = $8, updated_at = $9
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.pool.Exec(ctx, query,
		row.ID, row.Profile, row.Timezone, row.AutomationLevel,
		row.QuietStartHour, row.QuietEndHour,
		row.ChannelConfig, row.Governance, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account not found or already deleted")
	}
	return nil
}

func (r *postgresRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE accounts SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft deleting account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account not found or already deleted")
	}
	return nil
}
