package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rejoinhq/rejoin/internal/conversation"
)

type fakeQuota struct {
	checkErr error
	recorded int
}

func (f *fakeQuota) CheckOutboundQuota(ctx context.Context, accountID uuid.UUID) error {
	return f.checkErr
}

func (f *fakeQuota) RecordOutbound(ctx context.Context, accountID uuid.UUID) error {
	f.recorded++
	return nil
}

type fakeInner struct {
	sent    []conversation.Dispatch
	sendErr error
}

func (f *fakeInner) Send(ctx context.Context, d conversation.Dispatch) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, d)
	return nil
}

func TestGovernedDispatcherSendsAndRecords(t *testing.T) {
	inner := &fakeInner{}
	quotas := &fakeQuota{}
	d := NewGovernedDispatcher(inner, quotas)

	err := d.Send(context.Background(), conversation.Dispatch{
		ID:         uuid.New(),
		AccountID:  uuid.New(),
		MemberAddr: "sam@members.example.com",
		Body:       "See you Tuesday!",
	})
	require.NoError(t, err)
	assert.Len(t, inner.sent, 1)
	assert.Equal(t, 1, quotas.recorded)
}

func TestGovernedDispatcherBlocksOverCap(t *testing.T) {
	inner := &fakeInner{}
	quotas := &fakeQuota{checkErr: errors.New("daily outbound limit exceeded")}
	d := NewGovernedDispatcher(inner, quotas)

	err := d.Send(context.Background(), conversation.Dispatch{AccountID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily outbound limit exceeded")
	assert.Empty(t, inner.sent)
	assert.Zero(t, quotas.recorded)
}

func TestGovernedDispatcherDoesNotRecordFailedSend(t *testing.T) {
	inner := &fakeInner{sendErr: errors.New("nats unavailable")}
	quotas := &fakeQuota{}
	d := NewGovernedDispatcher(inner, quotas)

	err := d.Send(context.Background(), conversation.Dispatch{AccountID: uuid.New()})
	require.Error(t, err)
	assert.Zero(t, quotas.recorded)
}
