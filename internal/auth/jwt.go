package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "rejoin"

// TokenPair is what login, register, and refresh return to the dashboard.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AccessClaims struct {
	OperatorID string `json:"uid"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

// RefreshClaims carry a token ID so individual refresh tokens can be
// revoked server side.
type RefreshClaims struct {
	OperatorID string `json:"uid"`
	TokenID    string `json:"tid"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates the two token families with separate
// secrets, so a leaked access secret cannot mint refresh tokens.
type JWTManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewJWTManager(accessSecret, refreshSecret string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

func registeredClaims(now time.Time, expiry time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    tokenIssuer,
	}
}

// GenerateTokenPair mints an access/refresh pair. The returned token ID
// identifies the refresh token for revocation.
func (m *JWTManager) GenerateTokenPair(operatorID, email string) (*TokenPair, string, error) {
	now := time.Now()

	accessStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		OperatorID:       operatorID,
		Email:            email,
		RegisteredClaims: registeredClaims(now, m.accessExpiry),
	}).SignedString(m.accessSecret)
	if err != nil {
		return nil, "", fmt.Errorf("signing access token: %w", err)
	}

	tokenID := uuid.NewString()
	refreshStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		OperatorID:       operatorID,
		TokenID:          tokenID,
		RegisteredClaims: registeredClaims(now, m.refreshExpiry),
	}).SignedString(m.refreshSecret)
	if err != nil {
		return nil, "", fmt.Errorf("signing refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessStr,
		RefreshToken: refreshStr,
		ExpiresIn:    int64(m.accessExpiry.Seconds()),
	}, tokenID, nil
}

func hmacKeyFunc(secret []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}
}

func (m *JWTManager) ValidateAccessToken(tokenStr string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, hmacKeyFunc(m.accessSecret))
	if err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid access token claims")
	}
	return claims, nil
}

func (m *JWTManager) ValidateRefreshToken(tokenStr string) (*RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &RefreshClaims{}, hmacKeyFunc(m.refreshSecret))
	if err != nil {
		return nil, fmt.Errorf("parsing refresh token: %w", err)
	}
	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid refresh token claims")
	}
	return claims, nil
}

func (m *JWTManager) RefreshExpiry() time.Duration {
	return m.refreshExpiry
}
