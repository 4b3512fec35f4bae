package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rejoinhq/rejoin/internal/config"
)

// Service orchestrates Redis rate limiting and PostgreSQL quota tracking.
type Service struct {
	repo    *Repository
	limiter *RateLimiter
	cfg     config.GovernanceConfig
}

// NewService creates a new quota Service.
func NewService(repo *Repository, limiter *RateLimiter, cfg config.GovernanceConfig) *Service {
	return &Service{
		repo:    repo,
		limiter: limiter,
		cfg:     cfg,
	}
}

// CheckLLMQuota verifies the account is under its per-minute LLM call limit.
// Redis failures are logged and the call is allowed through.
func (s *Service) CheckLLMQuota(ctx context.Context, accountID uuid.UUID) error {
	allowed, err := s.limiter.CheckAndIncrement(ctx, accountID, s.cfg.MaxLLMCallsPerMinute)
	if err != nil {
		slog.Warn("quota: rate limiter check failed, allowing call", "error", err)
		return nil
	}
	if !allowed {
		_ = s.repo.RecordViolation(ctx, accountID, "llm_rate_limit_minute")
		return fmt.Errorf("llm rate limit exceeded: max %d calls per minute", s.cfg.MaxLLMCallsPerMinute)
	}

	if err := s.repo.IncrementLLMCalls(ctx, accountID); err != nil {
		slog.Warn("quota: failed to record llm call", "error", err)
	}
	return nil
}

// CheckOutboundQuota verifies the account is under its daily outbound message cap.
func (s *Service) CheckOutboundQuota(ctx context.Context, accountID uuid.UUID) error {
	if _, err := s.repo.ResetDailyIfStale(ctx, accountID); err != nil {
		slog.Warn("quota: daily reset check failed", "error", err)
	}

	quota, err := s.repo.GetOrCreate(ctx, accountID)
	if err != nil {
		slog.Warn("quota: failed to get quota, allowing send", "error", err)
		return nil
	}

	if quota.OutboundToday >= s.cfg.MaxOutboundPerDay {
		_ = s.repo.RecordViolation(ctx, accountID, "daily_outbound_limit")
		return fmt.Errorf("daily outbound limit exceeded: %d/%d messages sent", quota.OutboundToday, s.cfg.MaxOutboundPerDay)
	}
	return nil
}

// RecordOutbound increments the daily outbound counter after a successful send.
func (s *Service) RecordOutbound(ctx context.Context, accountID uuid.UUID) error {
	return s.repo.IncrementOutbound(ctx, accountID)
}

// GetQuota returns the account's current quota status for API display.
func (s *Service) GetQuota(ctx context.Context, accountID uuid.UUID) (*QuotaStatus, error) {
	if _, err := s.repo.ResetDailyIfStale(ctx, accountID); err != nil {
		slog.Warn("quota: daily reset check failed", "error", err)
	}

	quota, err := s.repo.GetOrCreate(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("getting quota: %w", err)
	}

	minuteUsage, err := s.limiter.GetMinuteUsage(ctx, accountID)
	if err != nil {
		slog.Warn("quota: failed to get minute usage", "error", err)
		minuteUsage = 0
	}

	return &QuotaStatus{
		LLMCallsToday:       quota.LLMCallsToday,
		LLMCallsMinute:      minuteUsage,
		LLMCallsLimitMinute: s.cfg.MaxLLMCallsPerMinute,
		OutboundToday:       quota.OutboundToday,
		OutboundLimitDay:    s.cfg.MaxOutboundPerDay,
	}, nil
}
