package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the append-only conversation log. Thread reads come in two
// modes: prompt context excludes RoleDecision rows, audit reads include
// them.
type Store interface {
	Append(ctx context.Context, msg *Message) error
	// AppendMany writes several rows atomically, preserving order. The
	// engine uses it to commit a decision row together with its outbound
	// message so a cancellation cannot leave one without the other.
	AppendMany(ctx context.Context, msgs ...*Message) error
	ListThread(ctx context.Context, threadID uuid.UUID, includeDecisions bool) ([]Message, error)
	ListThreads(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]uuid.UUID, error)
}

type postgresStore struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func prepare(msg *Message) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
}

const insertMessage = `
	INSERT INTO conversation_messages (id, thread_id, account_id, role, body, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

func (s *postgresStore) Append(ctx context.Context, msg *Message) error {
	prepare(msg)
	_, err := s.pool.Exec(ctx, insertMessage,
		msg.ID, msg.ThreadID, msg.AccountID, msg.Role, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending conversation message: %w", err)
	}
	return nil
}

func (s *postgresStore) AppendMany(ctx context.Context, msgs ...*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, msg := range msgs {
		prepare(msg)
		if _, err := tx.Exec(ctx, insertMessage,
			msg.ID, msg.ThreadID, msg.AccountID, msg.Role, msg.Body, msg.CreatedAt); err != nil {
			return fmt.Errorf("appending conversation message: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing append transaction: %w", err)
	}
	return nil
}

func (s *postgresStore) ListThread(ctx context.Context, threadID uuid.UUID, includeDecisions bool) ([]Message, error) {
	query := `
		SELECT id, thread_id, account_id, role, body, created_at
		FROM conversation_messages
		WHERE thread_id = $1
		ORDER BY created_at, id`
	args := []any{threadID}
	if !includeDecisions {
		query = `
		SELECT id, thread_id, account_id, role, body, created_at
		FROM conversation_messages
		WHERE thread_id = $1 AND role <> $2
		ORDER BY created_at, id`
		args = append(args, RoleDecision)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing thread: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.AccountID, &m.Role, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning thread row: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *postgresStore) ListThreads(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]uuid.UUID, error) {
	offset := (page - 1) * pageSize
	rows, err := s.pool.Query(ctx,
		`SELECT thread_id
		 FROM conversation_messages
		 WHERE account_id = $1
		 GROUP BY thread_id
		 ORDER BY MAX(created_at) DESC
		 LIMIT $2 OFFSET $3`,
		accountID, pageSize, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
