package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/config"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// TokenManager issues and verifies HMAC-signed JWTs.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewTokenManager creates a token manager from configuration.
func NewTokenManager(cfg *config.JWTConfig) *TokenManager {
	ttl := time.Duration(cfg.TokenTTL) * time.Second
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	return &TokenManager{
		secret: []byte(cfg.SecretKey),
		ttl:    ttl,
		issuer: cfg.Issuer,
	}
}

type tokenClaims struct {
	UserID string     `json:"user_id"`
	Email  string     `json:"email"`
	Role   types.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a token for the user.
func (m *TokenManager) Issue(user *types.User) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", types.NewInternalError(types.ErrCodeInternalError, "failed to sign token", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning its claims.
func (m *TokenManager) Verify(tokenString string) (*types.UserClaims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, types.NewAuthenticationError(types.ErrCodeUnauthorized, "Invalid or expired token")
	}

	return &types.UserClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}
