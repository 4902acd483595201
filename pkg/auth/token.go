package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
)

var signingMethod = jwt.SigningMethodHS256

var (
	ErrMissingSecret = errors.New("auth: jwt secret is required")
	ErrMissingIssuer = errors.New("auth: jwt issuer is required")
	ErrInvalidRole   = errors.New("auth: role is not allowed in access tokens")
)

// MintAccessToken issues a signed JWT. The settlement service only verifies
// tokens; minting exists for operators and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrMissingSecret
	case cfg.Issuer == "":
		return "", ErrMissingIssuer
	case cfg.ExpirationMinutes <= 0:
		return "", fmt.Errorf("auth: expiration must be positive, got %d minutes", cfg.ExpirationMinutes)
	case payload.UserID == uuid.Nil:
		return "", errors.New("auth: user id is required")
	case !payload.Role.IsValid():
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, payload.Role)
	}

	id := strings.TrimSpace(payload.JTI)
	if id == "" {
		id = uuid.NewString()
	}
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	token := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		Role: payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   payload.UserID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken accepts only HS256 tokens from the configured issuer that
// carry an expiry, a UUID subject and a role a caller may hold.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)

	claims := &AccessTokenClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, claims.Role)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("auth: subject is not a user id: %w", err)
	}
	return claims, nil
}
