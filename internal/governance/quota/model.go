package quota

import (
	"time"

	"github.com/google/uuid"
)

// AccountQuota matches the account_quotas table schema.
type AccountQuota struct {
	AccountID      uuid.UUID `json:"account_id"`
	LLMCallsToday  int       `json:"llm_calls_today"`
	OutboundToday  int       `json:"outbound_today"`
	LastDailyReset time.Time `json:"last_daily_reset"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// QuotaStatus is the API response showing current quota usage and limits.
type QuotaStatus struct {
	LLMCallsToday       int `json:"llm_calls_today"`
	LLMCallsMinute      int `json:"llm_calls_minute"`
	LLMCallsLimitMinute int `json:"llm_calls_limit_minute"`
	OutboundToday       int `json:"outbound_today"`
	OutboundLimitDay    int `json:"outbound_limit_day"`
}
