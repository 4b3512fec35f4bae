package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rejoinhq/rejoin/internal/accounts"
)

// RouteResult carries the resolved account for an inbound member message.
type RouteResult struct {
	AccountID       uuid.UUID
	OwnerOperatorID uuid.UUID
	GymName         string
	ChannelAddr     string
	Governance      []byte
}

// Router resolves channel addresses to accounts.
type Router struct {
	accounts *accounts.Service
}

// NewRouter creates a new Router.
func NewRouter(accounts *accounts.Service) *Router {
	return &Router{accounts: accounts}
}

// Route resolves a message's channel address to the target account.
func (r *Router) Route(ctx context.Context, channelAddr string) (*RouteResult, error) {
	account, err := r.accounts.GetByChannelAddr(ctx, channelAddr)
	if err != nil {
		return nil, fmt.Errorf("looking up account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("no account for channel address %s", channelAddr)
	}

	return &RouteResult{
		AccountID:       account.ID,
		OwnerOperatorID: account.OwnerOperatorID,
		GymName:         account.Profile.GymName,
		ChannelAddr:     account.ChannelAddr,
		Governance:      account.Governance,
	}, nil
}
