package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/dbx"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Credential) error {
	params, err := json.Marshal(c.KDF)
	if err != nil {
		return fmt.Errorf("encode kdf params: %w", err)
	}

	query :=
		`INSERT INTO credentials (user_id, password_hash, salt, kdf_params, role, facility_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	_, err = r.db.ExecContext(ctx, query,
		c.UserID, c.PasswordHash, c.Salt, params, c.Role.String(), c.FacilityID, c.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", c.UserID, common.ErrAlreadyExists)
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, userID string) (*models.Credential, error) {
	query :=
		`SELECT user_id, password_hash, salt, kdf_params, role, facility_id, created_at
		 FROM credentials
		 WHERE user_id = $1
		 `

	var (
		c      models.Credential
		params []byte
		role   string
	)
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&c.UserID, &c.PasswordHash, &c.Salt, &params, &role, &c.FacilityID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(params, &c.KDF); err != nil {
		return nil, fmt.Errorf("decode kdf params: %w", err)
	}
	if c.Role, err = models.ParseRole(role); err != nil {
		return nil, err
	}

	return &c, nil
}
