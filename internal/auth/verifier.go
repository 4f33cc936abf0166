// Package auth establishes caller identity at the boundary: credential
// verification against the store and bearer-token issue/verify. The
// query pipeline itself only ever sees the resulting model.Caller.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/querygate/querygate/internal/model"
)

// ErrInvalidCredentials is returned for any unknown user, wrong
// password, or deactivated account. Deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Credentials is what a caller presents at login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Verifier checks credentials and returns the asserted caller. The
// store-backed implementation is the default; tests substitute their
// own.
type Verifier interface {
	Verify(ctx context.Context, creds Credentials) (model.Caller, error)
}

// CredentialStore verifies against the system_users table. Passwords
// are stored as salted argon2id hashes; there is no in-memory user
// table anywhere.
type CredentialStore struct {
	db *sql.DB
}

// NewCredentialStore returns a verifier over the store handle.
func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Verify looks up the user and checks the password hash. Inactive
// accounts fail exactly like wrong passwords.
func (s *CredentialStore) Verify(ctx context.Context, creds Credentials) (model.Caller, error) {
	if creds.Username == "" || creds.Password == "" {
		return model.Caller{}, ErrInvalidCredentials
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT user_id, username, role, email, password_hash, is_active FROM system_users WHERE username = $1",
		creds.Username)

	var (
		caller model.Caller
		role   string
		hash   string
		active bool
	)
	if err := row.Scan(&caller.ID, &caller.Username, &role, &caller.Email, &hash, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Caller{}, ErrInvalidCredentials
		}
		return model.Caller{}, fmt.Errorf("auth: lookup: %w", err)
	}
	if !active {
		return model.Caller{}, ErrInvalidCredentials
	}
	if !VerifyPassword(creds.Password, hash) {
		return model.Caller{}, ErrInvalidCredentials
	}

	r, ok := model.ParseRole(role)
	if !ok {
		return model.Caller{}, fmt.Errorf("auth: user %s has unknown role %q", creds.Username, role)
	}
	caller.Role = r
	return caller, nil
}
