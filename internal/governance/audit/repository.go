package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists and queries audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes one audit entry. A nil ID is assigned and empty
// details become an empty JSON object so the column stays valid JSONB.
func (r *Repository) Insert(ctx context.Context, log *AuditLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	details := log.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, account_id, event_type, severity, resource_type, resource_id, details, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.AccountID, log.EventType, log.Severity, log.ResourceType, log.ResourceID, details, log.IPAddress)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// ListByAccount returns a page of the account's audit trail, newest
// first.
func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID, params ListParams) ([]AuditLog, int64, error) {
	return r.list(ctx, accountID, nil, params)
}

// ListByResource narrows the trail to entries touching one resource,
// such as a single conversation thread or approval.
func (r *Repository) ListByResource(ctx context.Context, accountID uuid.UUID, resourceID uuid.UUID, params ListParams) ([]AuditLog, int64, error) {
	return r.list(ctx, accountID, &resourceID, params)
}

// auditFilter accumulates WHERE conditions with positional args.
type auditFilter struct {
	conditions []string
	args       []any
}

func (f *auditFilter) add(column, op string, value any) {
	f.args = append(f.args, value)
	f.conditions = append(f.conditions, fmt.Sprintf("%s %s $%d", column, op, len(f.args)))
}

func (f *auditFilter) where() string {
	return strings.Join(f.conditions, " AND ")
}

func (r *Repository) list(ctx context.Context, accountID uuid.UUID, resourceID *uuid.UUID, params ListParams) ([]AuditLog, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	f := &auditFilter{}
	f.add("account_id", "=", accountID)
	if resourceID != nil {
		f.add("resource_id", "=", *resourceID)
	}
	if params.EventType != "" {
		f.add("event_type", "=", params.EventType)
	}
	if params.Severity != "" {
		f.add("severity", "=", params.Severity)
	}
	if params.From != nil {
		f.add("created_at", ">=", *params.From)
	}
	if params.To != nil {
		f.add("created_at", "<=", *params.To)
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM audit_logs WHERE " + f.where()
	if err := r.pool.QueryRow(ctx, countQuery, f.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit logs: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(
		`SELECT id, account_id, event_type, severity, resource_type, resource_id, details, ip_address, created_at
		 FROM audit_logs WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, f.where(), len(f.args)+1, len(f.args)+2)
	args := append(f.args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var l AuditLog
		if err := rows.Scan(&l.ID, &l.AccountID, &l.EventType, &l.Severity,
			&l.ResourceType, &l.ResourceID, &l.Details, &l.IPAddress, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, total, nil
}
