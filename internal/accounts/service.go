package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rejoinhq/rejoin/internal/auth"
	"github.com/rejoinhq/rejoin/internal/conversation"
	"github.com/rejoinhq/rejoin/internal/skills"
	"github.com/rejoinhq/rejoin/internal/timewindow"
)

type Service struct {
	repo          Repository
	encryptor     *auth.Encryptor
	channelDomain string
}

func NewService(repo Repository, encryptionKey, channelDomain string) *Service {
	enc, err := auth.NewEncryptor(encryptionKey)
	if err != nil {
		panic(fmt.Sprintf("failed to create encryptor: %v", err))
	}
	return &Service{
		repo:          repo,
		encryptor:     enc,
		channelDomain: channelDomain,
	}
}

func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, req *CreateAccountRequest) (*Account, error) {
	if !timewindow.IsValidTimezone(req.Timezone) {
		return nil, fmt.Errorf("unknown timezone %q", req.Timezone)
	}

	accountID := uuid.New()
	now := time.Now()

	// Channel address: gym-<uuid>@members.<domain>
	channelAddr := fmt.Sprintf("gym-%s@members.%s", accountID.String(), s.channelDomain)

	profileJSON, err := json.Marshal(BrandProfile{
		GymName:     req.GymName,
		Description: req.Description,
		Tone:        req.Tone,
		SignOff:     req.SignOff,
		TaskType:    req.TaskType,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling profile: %w", err)
	}

	channelConfig, err := s.sealChannelConfig(req.ChannelConfig)
	if err != nil {
		return nil, err
	}

	level := req.AutomationLevel
	if level == "" {
		level = string(conversation.DraftOnly)
	}

	row := &AccountRow{
		ID:              accountID,
		OwnerOperatorID: ownerID,
		ChannelAddr:     channelAddr,
		Profile:         profileJSON,
		Timezone:        req.Timezone,
		AutomationLevel: level,
		QuietStartHour:  req.QuietStartHour,
		QuietEndHour:    req.QuietEndHour,
		ChannelConfig:   channelConfig,
		Governance:      defaultJSON(req.Governance),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, row); err != nil {
		return nil, err
	}

	return s.rowToAccount(row)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return s.rowToAccount(row)
}

func (s *Service) GetByChannelAddr(ctx context.Context, addr string) (*Account, error) {
	row, err := s.repo.GetByChannelAddr(ctx, addr)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return s.rowToAccount(row)
}

func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, params ListAccountsParams) ([]*Account, int64, error) {
	offset := (params.Page - 1) * params.PageSize

	rows, err := s.repo.ListByOwner(ctx, ownerID, params.PageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*Account, 0, len(rows))
	for _, row := range rows {
		account, err := s.rowToAccount(row)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, account)
	}
	return out, count, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *UpdateAccountRequest) (*Account, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	var profile BrandProfile
	if err := json.Unmarshal(row.Profile, &profile); err != nil {
		return nil, fmt.Errorf("unmarshaling profile: %w", err)
	}
	if req.GymName != nil {
		profile.GymName = *req.GymName
	}
	if req.Description != nil {
		profile.Description = *req.Description
	}
	if req.Tone != nil {
		profile.Tone = *req.Tone
	}
	if req.SignOff != nil {
		profile.SignOff = *req.SignOff
	}
	if req.TaskType != nil {
		profile.TaskType = *req.TaskType
	}
	row.Profile, err = json.Marshal(profile)
	if err != nil {
		return nil, fmt.Errorf("marshaling profile: %w", err)
	}

	if req.Timezone != nil {
		if !timewindow.IsValidTimezone(*req.Timezone) {
			return nil, fmt.Errorf("unknown timezone %q", *req.Timezone)
		}
		row.Timezone = *req.Timezone
	}
	if req.AutomationLevel != nil {
		row.AutomationLevel = *req.AutomationLevel
	}
	if req.QuietStartHour != nil {
		row.QuietStartHour = req.QuietStartHour
	}
	if req.QuietEndHour != nil {
		row.QuietEndHour = req.QuietEndHour
	}
	if req.ChannelConfig != nil {
		sealed, err := s.sealChannelConfig(*req.ChannelConfig)
		if err != nil {
			return nil, err
		}
		row.ChannelConfig = sealed
	}
	if req.Governance != nil {
		row.Governance = defaultJSON(*req.Governance)
	}
	row.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, row); err != nil {
		return nil, err
	}
	return s.rowToAccount(row)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, id)
}

// ResolveThreadContext builds the engine's per-thread settings from the
// account record. Implements conversation.AccountResolver.
func (s *Service) ResolveThreadContext(ctx context.Context, accountID, threadID uuid.UUID, memberAddr, memberName string) (conversation.ThreadContext, error) {
	account, err := s.GetByID(ctx, accountID)
	if err != nil {
		return conversation.ThreadContext{}, err
	}
	if account == nil {
		return conversation.ThreadContext{}, fmt.Errorf("account %s not found", accountID)
	}

	return conversation.ThreadContext{
		ThreadID:        threadID,
		AccountID:       account.ID,
		MemberAddr:      memberAddr,
		MemberName:      memberName,
		Timezone:        account.Timezone,
		Automation:      conversation.AutomationLevel(account.AutomationLevel),
		TaskDescription: account.Profile.Description,
		LegacyType:      account.Profile.TaskType,
		Voice: skills.Voice{
			GymName: account.Profile.GymName,
			Tone:    account.Profile.Tone,
			SignOff: account.Profile.SignOff,
		},
		QuietStartHour: account.QuietStartHour,
		QuietEndHour:   account.QuietEndHour,
	}, nil
}

// AccountTimezone implements dispatch.TimezoneResolver.
func (s *Service) AccountTimezone(ctx context.Context, accountID uuid.UUID) (string, error) {
	account, err := s.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", fmt.Errorf("account %s not found", accountID)
	}
	return account.Timezone, nil
}

// sealedChannelConfig wraps an encrypted channel_config payload.
type sealedChannelConfig struct {
	Encrypted bool   `json:"encrypted"`
	Data      string `json:"data"`
}

// sealChannelConfig encrypts the channel settings blob at rest. Channel
// configs carry provider credentials, so they never hit the table in
// plaintext.
func (s *Service) sealChannelConfig(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte(`{}`), nil
	}
	ciphertext, err := s.encryptor.Encrypt(string(raw))
	if err != nil {
		return nil, fmt.Errorf("encrypting channel config: %w", err)
	}
	return json.Marshal(sealedChannelConfig{Encrypted: true, Data: ciphertext})
}

// OpenChannelConfig decrypts a stored channel config for the channel
// adapter. Unencrypted legacy blobs pass through unchanged.
func (s *Service) OpenChannelConfig(account *Account) (json.RawMessage, error) {
	var sealed sealedChannelConfig
	if err := json.Unmarshal(account.ChannelConfig, &sealed); err != nil || !sealed.Encrypted {
		return account.ChannelConfig, nil
	}
	plaintext, err := s.encryptor.Decrypt(sealed.Data)
	if err != nil {
		return nil, fmt.Errorf("decrypting channel config: %w", err)
	}
	return json.RawMessage(plaintext), nil
}

func (s *Service) rowToAccount(row *AccountRow) (*Account, error) {
	var profile BrandProfile
	if len(row.Profile) > 0 {
		if err := json.Unmarshal(row.Profile, &profile); err != nil {
			return nil, fmt.Errorf("unmarshaling profile: %w", err)
		}
	}

	return &Account{
		ID:              row.ID,
		OwnerOperatorID: row.OwnerOperatorID,
		ChannelAddr:     row.ChannelAddr,
		Profile:         profile,
		Timezone:        row.Timezone,
		AutomationLevel: row.AutomationLevel,
		QuietStartHour:  row.QuietStartHour,
		QuietEndHour:    row.QuietEndHour,
		ChannelConfig:   row.ChannelConfig,
		Governance:      row.Governance,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		DeletedAt:       row.DeletedAt,
	}, nil
}

func defaultJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte(`{}`)
	}
	return raw
}
