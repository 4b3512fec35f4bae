package xmpp

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAccountID(t *testing.T) {
	expected := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

	tests := []struct {
		name    string
		addr    string
		wantID  uuid.UUID
		wantErr bool
	}{
		{
			name:   "valid bare address",
			addr:   "gym-550e8400-e29b-41d4-a716-446655440000@members.rejoin.app",
			wantID: expected,
		},
		{
			name:   "valid address with resource",
			addr:   "gym-550e8400-e29b-41d4-a716-446655440000@members.rejoin.app/phone",
			wantID: expected,
		},
		{
			name:    "missing gym- prefix",
			addr:    "550e8400-e29b-41d4-a716-446655440000@members.rejoin.app",
			wantErr: true,
		},
		{
			name:    "invalid UUID",
			addr:    "gym-not-a-uuid@members.rejoin.app",
			wantErr: true,
		},
		{
			name:    "empty address",
			addr:    "",
			wantErr: true,
		},
		{
			name:   "no @ sign",
			addr:   "gym-550e8400-e29b-41d4-a716-446655440000",
			wantID: expected,
		},
		{
			name:    "member address",
			addr:    "maria@members.rejoin.app",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractAccountID(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got)
		})
	}
}

func TestBareAddr(t *testing.T) {
	assert.Equal(t, "maria@members.rejoin.app", bareAddr("maria@members.rejoin.app/phone"))
	assert.Equal(t, "maria@members.rejoin.app", bareAddr("maria@members.rejoin.app"))
}
