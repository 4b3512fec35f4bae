package accounts

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rejoinhq/rejoin/internal/skills"
)

type memoryRepo struct {
	rows map[uuid.UUID]*AccountRow
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[uuid.UUID]*AccountRow{}}
}

func (r *memoryRepo) Create(_ context.Context, row *AccountRow) error {
	cp := *row
	r.rows[row.ID] = &cp
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*AccountRow, error) {
	return r.rows[id], nil
}

func (r *memoryRepo) GetByChannelAddr(_ context.Context, addr string) (*AccountRow, error) {
	for _, row := range r.rows {
		if row.ChannelAddr == addr {
			return row, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) ListByOwner(_ context.Context, ownerID uuid.UUID, _, _ int) ([]*AccountRow, error) {
	var out []*AccountRow
	for _, row := range r.rows {
		if row.OwnerOperatorID == ownerID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memoryRepo) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	rows, _ := r.ListByOwner(ctx, ownerID, 0, 0)
	return int64(len(rows)), nil
}

func (r *memoryRepo) Update(_ context.Context, row *AccountRow) error {
	cp := *row
	r.rows[row.ID] = &cp
	return nil
}

func (r *memoryRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	delete(r.rows, id)
	return nil
}

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	key := strings.Repeat("ab", 32)
	return NewService(repo, key, "rejoin.test"), repo
}

func TestResolveThreadContextCarriesProfile(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	ownerID := uuid.New()

	account, err := svc.Create(ctx, ownerID, &CreateAccountRequest{
		GymName:         "Iron Temple",
		Description:     "cancelled members, win back",
		Tone:            "warm, direct",
		SignOff:         "Coach Sam",
		TaskType:        "renewal_at_risk",
		Timezone:        "America/Chicago",
		AutomationLevel: "smart",
	})
	require.NoError(t, err)

	threadID := uuid.New()
	tc, err := svc.ResolveThreadContext(ctx, account.ID, threadID, "dana@members.rejoin.test", "Dana")
	require.NoError(t, err)

	assert.Equal(t, threadID, tc.ThreadID)
	assert.Equal(t, account.ID, tc.AccountID)
	assert.Equal(t, "America/Chicago", tc.Timezone)
	assert.Equal(t, "cancelled members, win back", tc.TaskDescription)
	assert.Equal(t, "renewal_at_risk", tc.LegacyType,
		"the account's task type backs the skill selection fallback")
	assert.Equal(t, skills.Voice{
		GymName: "Iron Temple",
		Tone:    "warm, direct",
		SignOff: "Coach Sam",
	}, tc.Voice)
}

func TestUpdateTaskTypeReachesThreadContext(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	account, err := svc.Create(ctx, uuid.New(), &CreateAccountRequest{
		GymName:  "Southside Strength",
		Timezone: "UTC",
	})
	require.NoError(t, err)

	tc, err := svc.ResolveThreadContext(ctx, account.ID, uuid.New(), "m@members.rejoin.test", "")
	require.NoError(t, err)
	assert.Empty(t, tc.LegacyType)

	taskType := "payment_failed"
	_, err = svc.Update(ctx, account.ID, &UpdateAccountRequest{TaskType: &taskType})
	require.NoError(t, err)

	tc, err = svc.ResolveThreadContext(ctx, account.ID, uuid.New(), "m@members.rejoin.test", "")
	require.NoError(t, err)
	assert.Equal(t, "payment_failed", tc.LegacyType)
}
