package operators

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, operator *Operator) error
	GetByID(ctx context.Context, id uuid.UUID) (*Operator, error)
	GetByEmail(ctx context.Context, email string) (*Operator, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, operator *Operator) error {
	query := `
		INSERT INTO operators (id, email, name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		operator.ID, operator.Email, operator.Name, operator.PasswordHash,
		operator.CreatedAt, operator.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting operator: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Operator, error) {
	query := `SELECT id, email, name, password_hash, created_at, updated_at FROM operators WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id), "id")
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (*Operator, error) {
	query := `SELECT id, email, name, password_hash, created_at, updated_at FROM operators WHERE email = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, email), "email")
}

func (r *postgresRepository) scanOne(row pgx.Row, by string) (*Operator, error) {
	op := &Operator{}
	err := row.Scan(&op.ID, &op.Email, &op.Name, &op.PasswordHash, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying operator by %s: %w", by, err)
	}
	return op, nil
}

func (r *postgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM operators WHERE email = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}
