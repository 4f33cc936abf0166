package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/querygate/querygate/internal/model"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("correct horse battery staple", hash))
	assert.False(t, VerifyPassword("wrong", hash))
}

func TestPasswordHashesAreSalted(t *testing.T) {
	h1, err := HashPassword("same password")
	require.NoError(t, err)
	h2, err := HashPassword("same password")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "two hashes of one password must differ by salt")
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	assert.False(t, VerifyPassword("x", "not-a-hash"))
	assert.False(t, VerifyPassword("x", "$argon2id$v=19$garbage"))
	assert.False(t, VerifyPassword("x", ""))
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret"), time.Hour)
	caller := model.Caller{ID: 3, Username: "faculty1", Role: model.RoleFaculty, Email: "faculty1@uni.edu"}

	token, err := issuer.Issue(caller)
	require.NoError(t, err)

	got, err := issuer.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, caller, got)
}

func TestTokenRejectedAcrossSecrets(t *testing.T) {
	a := NewIssuer([]byte("secret-a"), time.Hour)
	b := NewIssuer([]byte("secret-b"), time.Hour)

	token, err := a.Issue(model.Caller{ID: 1, Username: "admin", Role: model.RoleAdmin})
	require.NoError(t, err)

	_, err = b.Authenticate(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret"), -time.Minute)
	token, err := issuer.Issue(model.Caller{ID: 1, Username: "admin", Role: model.RoleAdmin})
	require.NoError(t, err)

	_, err = issuer.Authenticate(token)
	assert.Error(t, err)
}

func userColumns() []string {
	return []string{"user_id", "username", "role", "email", "password_hash", "is_active"}
}

func TestVerifyChecksStoredHash(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	hash, err := HashPassword("s3curepass")
	require.NoError(t, err)

	query := "SELECT user_id, username, role, email, password_hash, is_active FROM system_users WHERE username = $1"
	mock.ExpectQuery(query).WithArgs("faculty1").WillReturnRows(
		sqlmock.NewRows(userColumns()).AddRow(3, "faculty1", "faculty", "faculty1@uni.edu", hash, true))

	s := NewCredentialStore(db)
	caller, err := s.Verify(context.Background(), Credentials{Username: "faculty1", Password: "s3curepass"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleFaculty, caller.Role)
	assert.Equal(t, 3, caller.ID)

	mock.ExpectQuery(query).WithArgs("faculty1").WillReturnRows(
		sqlmock.NewRows(userColumns()).AddRow(3, "faculty1", "faculty", "faculty1@uni.edu", hash, true))
	_, err = s.Verify(context.Background(), Credentials{Username: "faculty1", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyInactiveAccountIndistinguishable(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	hash, err := HashPassword("s3curepass")
	require.NoError(t, err)

	query := "SELECT user_id, username, role, email, password_hash, is_active FROM system_users WHERE username = $1"
	mock.ExpectQuery(query).WithArgs("ghost").WillReturnRows(
		sqlmock.NewRows(userColumns()).AddRow(9, "ghost", "student", "ghost@uni.edu", hash, false))

	s := NewCredentialStore(db)
	_, err = s.Verify(context.Background(), Credentials{Username: "ghost", Password: "s3curepass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyUnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	query := "SELECT user_id, username, role, email, password_hash, is_active FROM system_users WHERE username = $1"
	mock.ExpectQuery(query).WithArgs("nobody").WillReturnRows(sqlmock.NewRows(userColumns()))

	s := NewCredentialStore(db)
	_, err = s.Verify(context.Background(), Credentials{Username: "nobody", Password: "whatever"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}
