package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/querygate/querygate/internal/model"
)

// Issuer signs and verifies bearer tokens carrying the caller identity.
// The signing key comes from configuration; tokens are HS256 with a
// bounded lifetime.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer returns a token issuer. A zero ttl defaults to eight
// hours; a negative ttl is kept as-is and mints already-expired
// tokens.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	if ttl == 0 {
		ttl = 8 * time.Hour
	}
	return &Issuer{secret: secret, ttl: ttl}
}

type claims struct {
	UserID int    `json:"user_id"`
	Role   string `json:"role"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Issue signs a token for the verified caller.
func (i *Issuer) Issue(caller model.Caller) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: caller.ID,
		Role:   string(caller.Role),
		Email:  caller.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Authenticate parses and verifies a bearer token, returning the
// caller it asserts. Expired, tampered, or differently-signed tokens
// all fail.
func (i *Issuer) Authenticate(tokenString string) (model.Caller, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return model.Caller{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	role, ok := model.ParseRole(c.Role)
	if !ok {
		return model.Caller{}, fmt.Errorf("auth: token carries unknown role %q", c.Role)
	}
	return model.Caller{
		ID:       c.UserID,
		Username: c.Subject,
		Role:     role,
		Email:    c.Email,
	}, nil
}
