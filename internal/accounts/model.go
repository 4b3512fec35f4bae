package accounts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Account is one gym (or studio) the platform runs retention agents for.
// ChannelAddr is the account-side address members write to.
type Account struct {
	ID              uuid.UUID       `json:"id"`
	OwnerOperatorID uuid.UUID       `json:"owner_operator_id"`
	ChannelAddr     string          `json:"channel_addr"`
	Profile         BrandProfile    `json:"profile"`
	Timezone        string          `json:"timezone"`
	AutomationLevel string          `json:"automation_level"`
	QuietStartHour  *int            `json:"quiet_start_hour,omitempty"`
	QuietEndHour    *int            `json:"quiet_end_hour,omitempty"`
	ChannelConfig   json.RawMessage `json:"channel_config"`
	Governance      json.RawMessage `json:"governance"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       *time.Time      `json:"deleted_at,omitempty"`
}

// BrandProfile shapes the agent's voice for one gym. TaskType is the
// coarse playbook label older campaign tooling tagged accounts with; it
// backs skill selection when the free-text description matches nothing.
type BrandProfile struct {
	GymName     string `json:"gym_name"`
	Description string `json:"description"`
	Tone        string `json:"tone"`
	SignOff     string `json:"sign_off,omitempty"`
	TaskType    string `json:"task_type,omitempty"`
}

// AccountRow is the database representation with JSONB fields as raw bytes.
type AccountRow struct {
	ID              uuid.UUID
	OwnerOperatorID uuid.UUID
	ChannelAddr     string
	Profile         []byte
	Timezone        string
	AutomationLevel string
	QuietStartHour  *int
	QuietEndHour    *int
	ChannelConfig   []byte
	Governance      []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

type CreateAccountRequest struct {
	GymName         string          `json:"gym_name" validate:"required,min=1,max=255"`
	Description     string          `json:"description" validate:"max=1000"`
	Tone            string          `json:"tone" validate:"max=500"`
	SignOff         string          `json:"sign_off" validate:"max=255"`
	TaskType        string          `json:"task_type" validate:"max=100"`
	Timezone        string          `json:"timezone" validate:"required"`
	AutomationLevel string          `json:"automation_level" validate:"omitempty,oneof=full_auto smart draft_only"`
	QuietStartHour  *int            `json:"quiet_start_hour" validate:"omitempty,min=0,max=23"`
	QuietEndHour    *int            `json:"quiet_end_hour" validate:"omitempty,min=0,max=23"`
	ChannelConfig   json.RawMessage `json:"channel_config"`
	Governance      json.RawMessage `json:"governance"`
}

type UpdateAccountRequest struct {
	GymName         *string          `json:"gym_name" validate:"omitempty,min=1,max=255"`
	Description     *string          `json:"description" validate:"omitempty,max=1000"`
	Tone            *string          `json:"tone" validate:"omitempty,max=500"`
	SignOff         *string          `json:"sign_off" validate:"omitempty,max=255"`
	TaskType        *string          `json:"task_type" validate:"omitempty,max=100"`
	Timezone        *string          `json:"timezone"`
	AutomationLevel *string          `json:"automation_level" validate:"omitempty,oneof=full_auto smart draft_only"`
	QuietStartHour  *int             `json:"quiet_start_hour" validate:"omitempty,min=0,max=23"`
	QuietEndHour    *int             `json:"quiet_end_hour" validate:"omitempty,min=0,max=23"`
	ChannelConfig   *json.RawMessage `json:"channel_config"`
	Governance      *json.RawMessage `json:"governance"`
}

type ListAccountsParams struct {
	Page     int
	PageSize int
}

func DefaultListParams() ListAccountsParams {
	return ListAccountsParams{
		Page:     1,
		PageSize: 20,
	}
}
