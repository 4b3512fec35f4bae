package skills

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CustomizationStore persists per-account skill notes. Absence is the
// common case: Get returns (nil, nil) when no note exists.
type CustomizationStore interface {
	Get(ctx context.Context, accountID uuid.UUID, skillID string) (*Customization, error)
	Upsert(ctx context.Context, custom *Customization) error
	Delete(ctx context.Context, accountID uuid.UUID, skillID string) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]Customization, error)
}

type postgresCustomizationStore struct {
	pool *pgxpool.Pool
}

func NewCustomizationStore(pool *pgxpool.Pool) CustomizationStore {
	return &postgresCustomizationStore{pool: pool}
}

func (s *postgresCustomizationStore) Get(ctx context.Context, accountID uuid.UUID, skillID string) (*Customization, error) {
	var c Customization
	err := s.pool.QueryRow(ctx,
		`SELECT account_id, skill_id, note, updated_at
		 FROM skill_customizations
		 WHERE account_id = $1 AND skill_id = $2`,
		accountID, skillID,
	).Scan(&c.AccountID, &c.SkillID, &c.Note, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying skill customization: %w", err)
	}
	return &c, nil
}

func (s *postgresCustomizationStore) Upsert(ctx context.Context, custom *Customization) error {
	custom.UpdatedAt = time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO skill_customizations (account_id, skill_id, note, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id, skill_id) DO UPDATE SET note = $3, updated_at = $4`,
		custom.AccountID, custom.SkillID, custom.Note, custom.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting skill customization: %w", err)
	}
	return nil
}

func (s *postgresCustomizationStore) Delete(ctx context.Context, accountID uuid.UUID, skillID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM skill_customizations WHERE account_id = $1 AND skill_id = $2`,
		accountID, skillID,
	)
	if err != nil {
		return fmt.Errorf("deleting skill customization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("skill customization not found")
	}
	return nil
}

func (s *postgresCustomizationStore) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]Customization, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account_id, skill_id, note, updated_at
		 FROM skill_customizations
		 WHERE account_id = $1
		 ORDER BY skill_id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing skill customizations: %w", err)
	}
	defer rows.Close()

	var customs []Customization
	for rows.Next() {
		var c Customization
		if err := rows.Scan(&c.AccountID, &c.SkillID, &c.Note, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning skill customization: %w", err)
		}
		customs = append(customs, c)
	}
	return customs, rows.Err()
}
