package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rejoinhq/rejoin/internal/conversation"
	"github.com/rejoinhq/rejoin/internal/metrics"
	"github.com/rejoinhq/rejoin/internal/timewindow"
)

// ErrNotPending is returned when an approval targets a dispatch that is
// not awaiting a verdict.
var ErrNotPending = errors.New("dispatch is not pending")

// Service handles operator verdicts on withheld replies.
type Service struct {
	approvals  *ApprovalStore
	deferrals  *DeferralQueue
	dispatcher conversation.Dispatcher
	store      conversation.Store
	gate       *timewindow.Gate
}

func NewService(approvals *ApprovalStore, deferrals *DeferralQueue, dispatcher conversation.Dispatcher, store conversation.Store, gate *timewindow.Gate) *Service {
	return &Service{
		approvals:  approvals,
		deferrals:  deferrals,
		dispatcher: dispatcher,
		store:      store,
		gate:       gate,
	}
}

// Approve releases a withheld reply. Quiet hours still apply at approval
// time: an approval during the quiet window defers instead of sending.
func (s *Service) Approve(ctx context.Context, id, accountID uuid.UUID, timezone string) (sent bool, err error) {
	pending, err := s.approvals.Get(ctx, id, accountID)
	if err != nil {
		return false, err
	}
	if pending == nil || pending.Status != StatusPending {
		return false, ErrNotPending
	}

	if err := s.approvals.MarkApproved(ctx, id, accountID); err != nil {
		return false, err
	}

	d := conversation.Dispatch{
		ID:         pending.ID,
		AccountID:  pending.AccountID,
		ThreadID:   pending.ThreadID,
		MemberAddr: pending.MemberAddr,
		Body:       pending.Body,
	}

	now := time.Now()
	if s.gate.IsQuietHours(timezone, now) {
		due := s.gate.NextSendWindow(timezone, now)
		if err := s.deferrals.Defer(ctx, d, due); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := s.dispatcher.Send(ctx, d); err != nil {
		metrics.DispatchesTotal.WithLabelValues("failed").Inc()
		return false, fmt.Errorf("sending approved dispatch: %w", err)
	}
	metrics.DispatchesTotal.WithLabelValues("sent").Inc()

	if err := s.store.Append(ctx, &conversation.Message{
		ThreadID:  pending.ThreadID,
		AccountID: pending.AccountID,
		Role:      conversation.RoleOutbound,
		Body:      pending.Body,
	}); err != nil {
		return true, fmt.Errorf("recording approved outbound message: %w", err)
	}
	return true, nil
}

// Reject discards a withheld reply.
func (s *Service) Reject(ctx context.Context, id, accountID uuid.UUID) error {
	return s.approvals.MarkRejected(ctx, id, accountID)
}

func (s *Service) ListPending(ctx context.Context, accountID uuid.UUID) ([]PendingDispatch, error) {
	return s.approvals.ListPending(ctx, accountID)
}
