package audit

import (
	"context"
	"database/sql"
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

func (r *PostgresRepository) Append(ctx context.Context, e models.AuditEntry) error {
	query := `
		INSERT INTO audit_log (seq, prev_hash, actor_id, action, resource_id, ts, outcome, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query, e.Seq, e.PrevHash, e.ActorID, e.Action, e.ResourceID, e.Timestamp, e.Outcome, e.Hash)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("audit seq %d: %w", e.Seq, common.ErrConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectColumns = `seq, prev_hash, actor_id, action, resource_id, ts, outcome, hash`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (models.AuditEntry, error) {
	var e models.AuditEntry
	err := s.Scan(&e.Seq, &e.PrevHash, &e.ActorID, &e.Action, &e.ResourceID, &e.Timestamp, &e.Outcome, &e.Hash)
	e.Timestamp = e.Timestamp.UTC()
	return e, err
}

func (r *PostgresRepository) Last(ctx context.Context) (*models.AuditEntry, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_log ORDER BY seq DESC LIMIT 1`

	e, err := scanEntry(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &e, nil
}

func (r *PostgresRepository) Range(ctx context.Context, from, to int64) ([]models.AuditEntry, error) {
	query := `SELECT ` + selectColumns + ` FROM audit_log WHERE seq BETWEEN $1 AND $2 ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
