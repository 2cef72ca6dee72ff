package sessions

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

const (
	insertQuery = `(?s)^INSERT\s+INTO\s+sessions\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s*$`
	selectQuery = `(?s)^SELECT\s+user_id,\s*role,\s*facility_id,\s*issued_at,\s*expires_at,\s*revoked_at\s+FROM\s+sessions\s+WHERE\s+token_hash\s*=\s*\$1\s*$`
	revokeQuery = `(?s)^UPDATE\s+sessions\s+SET\s+revoked_at\s*=\s*COALESCE\(revoked_at,\s*\$2\)\s+WHERE\s+token_hash\s*=\s*\$1\s*$`
)

var issued = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func sampleSession() *models.Session {
	return &models.Session{
		TokenHash:  "h1",
		UserID:     "dr-house",
		Role:       models.RoleProvider,
		FacilityID: "f1",
		IssuedAt:   issued,
		ExpiresAt:  issued.Add(15 * time.Minute),
	}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	s := sampleSession()
	mock.ExpectExec(insertQuery).
		WithArgs("h1", "dr-house", "provider", "f1", s.IssuedAt, s.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQuery).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), sampleSession())
	if err == nil || !regexp.MustCompile(`error performing sql request: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFind_Active(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"user_id", "role", "facility_id", "issued_at", "expires_at", "revoked_at"}).
		AddRow("dr-house", "provider", "f1", issued, issued.Add(15*time.Minute), nil)
	mock.ExpectQuery(selectQuery).WithArgs("h1").WillReturnRows(rows)

	got, err := repo.Find(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, sampleSession(), got)
}

func TestFind_Revoked(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	revokedAt := issued.Add(time.Minute)
	rows := sqlmock.NewRows([]string{"user_id", "role", "facility_id", "issued_at", "expires_at", "revoked_at"}).
		AddRow("p1", "patient", "", issued, issued.Add(15*time.Minute), revokedAt)
	mock.ExpectQuery(selectQuery).WithArgs("h2").WillReturnRows(rows)

	got, err := repo.Find(context.Background(), "h2")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, revokedAt.Equal(*got.RevokedAt))
	assert.Equal(t, models.RolePatient, got.Role)
}

func TestFind_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectQuery).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := issued.Add(5 * time.Minute)
	mock.ExpectExec(revokeQuery).WithArgs("h1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(revokeQuery).WithArgs("nope", at).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(revokeQuery).WithArgs("h1", at).WillReturnError(errors.New("db err"))

	require.NoError(t, repo.Revoke(context.Background(), "h1", at))
	assert.ErrorIs(t, repo.Revoke(context.Background(), "nope", at), common.ErrNotFound)
	assert.Error(t, repo.Revoke(context.Background(), "h1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleSession()))
	assert.ErrorIs(t, repo.Create(ctx, sampleSession()), common.ErrAlreadyExists)

	first := issued.Add(time.Minute)
	require.NoError(t, repo.Revoke(ctx, "h1", first))
	require.NoError(t, repo.Revoke(ctx, "h1", first.Add(time.Hour)))

	got, err := repo.Find(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.Equal(t, first, *got.RevokedAt, "first revocation time is kept")

	assert.ErrorIs(t, repo.Revoke(ctx, "nope", first), common.ErrNotFound)
	_, err = repo.Find(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
