package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rejoinhq/rejoin/internal/conversation"
)

// Pending dispatch statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// PendingDispatch is a withheld reply awaiting an operator verdict.
type PendingDispatch struct {
	ID         uuid.UUID `json:"id"`
	AccountID  uuid.UUID `json:"account_id"`
	ThreadID   uuid.UUID `json:"thread_id"`
	MemberAddr string    `json:"member_addr"`
	Body       string    `json:"body"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
}

// ApprovalStore persists withheld replies in Postgres so operators can
// review them.
type ApprovalStore struct {
	pool *pgxpool.Pool
}

func NewApprovalStore(pool *pgxpool.Pool) *ApprovalStore {
	return &ApprovalStore{pool: pool}
}

// Queue records a withheld reply. Implements the engine's approval hook.
func (s *ApprovalStore) Queue(ctx context.Context, d conversation.Dispatch, reason string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pending_dispatches (id, account_id, thread_id, member_addr, body, reason, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		d.ID, d.AccountID, d.ThreadID, d.MemberAddr, d.Body, reason, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("queueing pending dispatch: %w", err)
	}
	return nil
}

func (s *ApprovalStore) ListPending(ctx context.Context, accountID uuid.UUID) ([]PendingDispatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, thread_id, member_addr, body, reason, status, created_at, decided_at
		 FROM pending_dispatches
		 WHERE account_id = $1 AND status = $2
		 ORDER BY created_at`,
		accountID, StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending dispatches: %w", err)
	}
	defer rows.Close()

	var out []PendingDispatch
	for rows.Next() {
		var p PendingDispatch
		if err := rows.Scan(&p.ID, &p.AccountID, &p.ThreadID, &p.MemberAddr, &p.Body,
			&p.Reason, &p.Status, &p.CreatedAt, &p.DecidedAt); err != nil {
			return nil, fmt.Errorf("scanning pending dispatch: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *ApprovalStore) Get(ctx context.Context, id, accountID uuid.UUID) (*PendingDispatch, error) {
	var p PendingDispatch
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, thread_id, member_addr, body, reason, status, created_at, decided_at
		 FROM pending_dispatches WHERE id = $1 AND account_id = $2`,
		id, accountID,
	).Scan(&p.ID, &p.AccountID, &p.ThreadID, &p.MemberAddr, &p.Body,
		&p.Reason, &p.Status, &p.CreatedAt, &p.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying pending dispatch: %w", err)
	}
	return &p, nil
}

// decide flips the status; only pending rows qualify, so approving twice
// is a no-op that reports not-found.
func (s *ApprovalStore) decide(ctx context.Context, id, accountID uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_dispatches SET status = $3, decided_at = now()
		 WHERE id = $1 AND account_id = $2 AND status = $4`,
		id, accountID, status, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("updating pending dispatch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *ApprovalStore) MarkApproved(ctx context.Context, id, accountID uuid.UUID) error {
	return s.decide(ctx, id, accountID, StatusApproved)
}

func (s *ApprovalStore) MarkRejected(ctx context.Context, id, accountID uuid.UUID) error {
	return s.decide(ctx, id, accountID, StatusRejected)
}
