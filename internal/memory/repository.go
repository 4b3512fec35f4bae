package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Repository persists memory cards.
type Repository interface {
	Create(ctx context.Context, card *Card) error
	UpdateContent(ctx context.Context, id, accountID uuid.UUID, content string, importance int, embedding []float32) error
	GetByID(ctx context.Context, id, accountID uuid.UUID) (*Card, error)
	// ListForPrompt returns global cards plus the member's cards, highest
	// importance first.
	ListForPrompt(ctx context.Context, accountID uuid.UUID, memberID string, limit int) ([]Card, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]Card, error)
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	SearchSimilar(ctx context.Context, accountID uuid.UUID, embedding []float32, limit int, threshold float64) ([]SearchResult, error)
	Delete(ctx context.Context, id, accountID uuid.UUID) error
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, card *Card) error {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	now := time.Now()
	card.CreatedAt = now
	card.UpdatedAt = now

	if len(card.Embedding) > 0 {
		vec := pgvector.NewVector(card.Embedding)
		_, err := r.pool.Exec(ctx,
			`INSERT INTO memory_cards (id, account_id, member_id, content, category, scope, importance, evidence, confidence, embedding, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			card.ID, card.AccountID, card.MemberID, card.Content, card.Category, card.Scope,
			card.Importance, card.Evidence, card.Confidence, vec, card.CreatedAt, card.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting memory card with embedding: %w", err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO memory_cards (id, account_id, member_id, content, category, scope, importance, evidence, confidence, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		card.ID, card.AccountID, card.MemberID, card.Content, card.Category, card.Scope,
		card.Importance, card.Evidence, card.Confidence, card.CreatedAt, card.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting memory card: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateContent(ctx context.Context, id, accountID uuid.UUID, content string, importance int, embedding []float32) error {
	var err error
	if len(embedding) > 0 {
		_, err = r.pool.Exec(ctx,
			`UPDATE memory_cards
			 SET content = $3, importance = $4, embedding = $5, updated_at = now()
			 WHERE id = $1 AND account_id = $2`,
			id, accountID, content, importance, pgvector.NewVector(embedding),
		)
	} else {
		_, err = r.pool.Exec(ctx,
			`UPDATE memory_cards
			 SET content = $3, importance = $4, updated_at = now()
			 WHERE id = $1 AND account_id = $2`,
			id, accountID, content, importance,
		)
	}
	if err != nil {
		return fmt.Errorf("updating memory card %s: %w", id, err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id, accountID uuid.UUID) (*Card, error) {
	var c Card
	err := r.pool.QueryRow(ctx,
		`SELECT id, account_id, member_id, content, category, scope, importance, evidence, confidence, created_at, updated_at
		 FROM memory_cards WHERE id = $1 AND account_id = $2`,
		id, accountID,
	).Scan(&c.ID, &c.AccountID, &c.MemberID, &c.Content, &c.Category, &c.Scope,
		&c.Importance, &c.Evidence, &c.Confidence, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying memory card: %w", err)
	}
	return &c, nil
}

func (r *PostgresRepository) ListForPrompt(ctx context.Context, accountID uuid.UUID, memberID string, limit int) ([]Card, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, member_id, content, category, scope, importance, evidence, confidence, created_at, updated_at
		 FROM memory_cards
		 WHERE account_id = $1 AND (scope = 'global' OR member_id = $2)
		 ORDER BY importance DESC, updated_at DESC
		 LIMIT $3`,
		accountID, memberID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing prompt memories: %w", err)
	}
	defer rows.Close()
	return scanCards(rows)
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]Card, error) {
	offset := (page - 1) * pageSize
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, member_id, content, category, scope, importance, evidence, confidence, created_at, updated_at
		 FROM memory_cards
		 WHERE account_id = $1
		 ORDER BY updated_at DESC
		 LIMIT $2 OFFSET $3`,
		accountID, pageSize, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing memory cards: %w", err)
	}
	defer rows.Close()
	return scanCards(rows)
}

func (r *PostgresRepository) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM memory_cards WHERE account_id = $1`, accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting memory cards: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) SearchSimilar(ctx context.Context, accountID uuid.UUID, embedding []float32, limit int, threshold float64) ([]SearchResult, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, member_id, content, category, scope, importance, evidence, confidence, created_at, updated_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM memory_cards
		 WHERE account_id = $2
		   AND embedding IS NOT NULL
		   AND 1 - (embedding <=> $1) >= $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		vec, accountID, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching memory cards: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var res SearchResult
		c := &res.Card
		if err := rows.Scan(&c.ID, &c.AccountID, &c.MemberID, &c.Content, &c.Category, &c.Scope,
			&c.Importance, &c.Evidence, &c.Confidence, &c.CreatedAt, &c.UpdatedAt, &res.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, id, accountID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM memory_cards WHERE id = $1 AND account_id = $2`, id, accountID,
	)
	if err != nil {
		return fmt.Errorf("deleting memory card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanCards(rows pgx.Rows) ([]Card, error) {
	var cards []Card
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ID, &c.AccountID, &c.MemberID, &c.Content, &c.Category, &c.Scope,
			&c.Importance, &c.Evidence, &c.Confidence, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
