package auth

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Service manages token lifecycles. Refresh tokens are single use: each
// one is keyed in Redis and deleted when exchanged, so a replayed refresh
// token fails.
type Service struct {
	jwt   *JWTManager
	redis *redis.Client
}

func NewService(jwt *JWTManager, redisClient *redis.Client) *Service {
	return &Service{jwt: jwt, redis: redisClient}
}

func refreshKey(operatorID, tokenID string) string {
	return "refresh:" + operatorID + ":" + tokenID
}

// GenerateTokens mints a pair and registers the refresh token.
func (s *Service) GenerateTokens(operatorID, email string) (*TokenPair, error) {
	pair, tokenID, err := s.jwt.GenerateTokenPair(operatorID, email)
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(context.Background(), refreshKey(operatorID, tokenID), "1", s.jwt.RefreshExpiry()).Err(); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}
	return pair, nil
}

// RefreshTokens exchanges a live refresh token for a fresh pair, revoking
// the old one first.
func (s *Service) RefreshTokens(refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	ctx := context.Background()
	key := refreshKey(claims.OperatorID, claims.TokenID)
	live, err := s.redis.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("checking refresh token: %w", err)
	}
	if live == 0 {
		return nil, fmt.Errorf("refresh token revoked")
	}
	s.redis.Del(ctx, key)

	// The refresh claims do not carry the email; the new access token
	// omits it and callers use the uid claim.
	pair, newTokenID, err := s.jwt.GenerateTokenPair(claims.OperatorID, "")
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, refreshKey(claims.OperatorID, newTokenID), "1", s.jwt.RefreshExpiry()).Err(); err != nil {
		return nil, fmt.Errorf("storing refreshed token: %w", err)
	}
	return pair, nil
}

// Logout revokes every live refresh token the operator holds.
func (s *Service) Logout(operatorID string) error {
	ctx := context.Background()
	iter := s.redis.Scan(ctx, 0, refreshKey(operatorID, "*"), 100).Iterator()
	for iter.Next(ctx) {
		s.redis.Del(ctx, iter.Val())
	}
	return iter.Err()
}

func (s *Service) ValidateAccessToken(token string) (*AccessClaims, error) {
	return s.jwt.ValidateAccessToken(token)
}
