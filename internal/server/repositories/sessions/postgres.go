package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/dbx"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (token_hash, user_id, role, facility_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, s.TokenHash, s.UserID, s.Role.String(), s.FacilityID, s.IssuedAt, s.ExpiresAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `
		SELECT user_id, role, facility_id, issued_at, expires_at, revoked_at
		FROM sessions
		WHERE token_hash = $1
	`
	var (
		s         = &models.Session{TokenHash: tokenHash}
		role      string
		revokedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&s.UserID, &role, &s.FacilityID, &s.IssuedAt, &s.ExpiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if s.Role, err = models.ParseRole(role); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		s.Revoked = true
		s.RevokedAt = &revokedAt.Time
	}
	return s, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, tokenHash string, at time.Time) error {
	query := `
		UPDATE sessions
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE token_hash = $1
	`
	res, err := r.db.ExecContext(ctx, query, tokenHash, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
