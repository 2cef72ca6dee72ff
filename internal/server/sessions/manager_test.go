package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/cryptox"
	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/server/models"
	"github.com/dmitrijs2005/patterm/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/patterm/internal/timex"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

var fastKDF = cryptox.KDFParams{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newTestManager(t *testing.T) (*Manager, *timex.StubClock, *repomanager.MemoryRepositoryManager) {
	t.Helper()
	clock := timex.NewStubClock(t0)
	rm := repomanager.NewMemoryRepositoryManager()
	return NewManager(nil, rm, clock, 15*time.Minute, fastKDF, logging.Nop{}), clock, rm
}

func TestRegisterAuthenticate(t *testing.T) {
	m, _, rm := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "p1", "correct horse", models.RolePatient, ""))

	c, err := m.Authenticate(ctx, "p1", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, models.RolePatient, c.Role)

	stored, err := rm.Credentials(nil).Find(ctx, "p1")
	require.NoError(t, err)
	assert.NotContains(t, string(stored.PasswordHash), "correct horse")
	assert.Len(t, stored.Salt, 16)
	assert.Equal(t, fastKDF, stored.KDF)

	_, err = m.Authenticate(ctx, "p1", "wrong horse")
	require.ErrorIs(t, err, common.ErrAuthentication)
	require.ErrorIs(t, err, common.ErrBadCredentials)

	_, err = m.Authenticate(ctx, "nobody", "correct horse")
	require.ErrorIs(t, err, common.ErrBadCredentials)
}

func TestRegister_Validation(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		userID     string
		password   string
		role       models.Role
		facilityID string
	}{
		{"empty user", "", "password1", models.RolePatient, ""},
		{"short password", "p1", "short", models.RolePatient, ""},
		{"unknown role", "u1", "password1", models.RoleUnknown, ""},
		{"provider without facility", "d1", "password1", models.RoleProvider, ""},
		{"patient with facility", "p1", "password1", models.RolePatient, "f1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Register(ctx, tt.userID, tt.password, tt.role, tt.facilityID)
			require.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "d1", "password1", models.RoleProvider, "f1"))
	err := m.Register(ctx, "d1", "password2", models.RoleProvider, "f1")
	require.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestIssueSession_CarriesCredentialRole(t *testing.T) {
	m, _, rm := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "d1", "password1", models.RoleProvider, "f1"))

	token, s, err := m.IssueSession(ctx, "d1", "password1")
	require.NoError(t, err)
	assert.Len(t, token, 2*common.SessionTokenBytes)
	assert.Equal(t, models.RoleProvider, s.Role)
	assert.Equal(t, "f1", s.FacilityID)
	assert.Equal(t, t0.Add(15*time.Minute), s.ExpiresAt)

	// only the hash is stored
	stored, err := rm.Sessions(nil).Find(ctx, cryptox.HashToken(token))
	require.NoError(t, err)
	assert.NotEqual(t, token, stored.TokenHash)

	_, _, err = m.IssueSession(ctx, "d1", "password2")
	require.ErrorIs(t, err, common.ErrAuthentication)
}

func TestIssue_TokensAreUnique(t *testing.T) {
	m, _, _ := newTestManager(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, _, err := m.Issue(context.Background(), "p1", models.RolePatient, "")
		require.NoError(t, err)
		require.False(t, seen[token])
		seen[token] = true
	}
}

func TestValidate_Lifecycle(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	token, _, err := m.Issue(ctx, "p1", models.RolePatient, "")
	require.NoError(t, err)

	s, err := m.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "p1", s.UserID)

	clock.Advance(15*time.Minute - time.Second)
	_, err = m.Validate(ctx, token)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = m.Validate(ctx, token)
	require.ErrorIs(t, err, common.ErrSessionExpired)
	require.ErrorIs(t, err, common.ErrAuthentication)

	// expired is terminal
	require.NoError(t, m.Revoke(ctx, token))
	_, err = m.Validate(ctx, token)
	require.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestRevoke(t *testing.T) {
	m, clock, rm := newTestManager(t)
	ctx := context.Background()

	token, _, err := m.Issue(ctx, "p1", models.RolePatient, "")
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, token))
	_, err = m.Validate(ctx, token)
	require.ErrorIs(t, err, common.ErrSessionRevoked)
	require.ErrorIs(t, err, common.ErrAuthentication)

	clock.Advance(time.Minute)
	require.NoError(t, m.Revoke(ctx, token))
	stored, err := rm.Sessions(nil).Find(ctx, cryptox.HashToken(token))
	require.NoError(t, err)
	assert.Equal(t, t0, *stored.RevokedAt)

	// still revoked, not expired, after the ttl passes
	clock.Advance(time.Hour)
	_, err = m.Validate(ctx, token)
	require.ErrorIs(t, err, common.ErrSessionRevoked)

	err = m.Revoke(ctx, "unknown")
	require.ErrorIs(t, err, common.ErrSessionNotFound)
}

func TestValidate_Unknown(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Validate(context.Background(), "")
	require.ErrorIs(t, err, common.ErrSessionNotFound)
	_, err = m.Validate(context.Background(), "deadbeef")
	require.ErrorIs(t, err, common.ErrSessionNotFound)
	assert.Equal(t, common.KindAuthentication, common.KindOf(err))
}

func TestRevoke_PostgresTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	clock := timex.NewStubClock(t0)
	m := NewManager(db, repomanager.NewPostgresRepositoryManager(), clock, time.Hour, fastKDF, logging.Nop{})

	hash := cryptox.HashToken("tok")
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id, role, facility_id, issued_at, expires_at, revoked_at\s+FROM sessions`).
		WithArgs(hash).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role", "facility_id", "issued_at", "expires_at", "revoked_at"}).
			AddRow("p1", "patient", "", t0, t0.Add(time.Hour), nil))
	mock.ExpectExec(`UPDATE sessions\s+SET revoked_at = COALESCE\(revoked_at, \$2\)`).
		WithArgs(hash, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, m.Revoke(context.Background(), "tok"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevoke_PostgresRollbackOnUnknown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewManager(db, repomanager.NewPostgresRepositoryManager(), timex.NewStubClock(t0), time.Hour, fastKDF, logging.Nop{})

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id, role`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "role", "facility_id", "issued_at", "expires_at", "revoked_at"}))
	mock.ExpectRollback()

	err = m.Revoke(context.Background(), "tok")
	require.ErrorIs(t, err, common.ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
