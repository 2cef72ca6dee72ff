package consent

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

func (r *PostgresRepository) Set(ctx context.Context, s models.ConsentStatus) error {
	query := `
		INSERT INTO consents (patient_id, facility_id, granted, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (patient_id, facility_id)
		DO UPDATE SET granted = EXCLUDED.granted, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, s.PatientID, s.FacilityID, s.Granted, s.UpdatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, patientID, facilityID string) (*models.ConsentStatus, error) {
	query := `
		SELECT granted, updated_at
		FROM consents
		WHERE patient_id = $1 AND facility_id = $2
	`
	s := &models.ConsentStatus{PatientID: patientID, FacilityID: facilityID}
	if err := r.db.QueryRowContext(ctx, query, patientID, facilityID).Scan(&s.Granted, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) List(ctx context.Context, patientID string) ([]models.ConsentStatus, error) {
	query := `
		SELECT facility_id, granted, updated_at
		FROM consents
		WHERE patient_id = $1
		ORDER BY facility_id
	`
	rows, err := r.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []models.ConsentStatus{}
	for rows.Next() {
		s := models.ConsentStatus{PatientID: patientID}
		if err := rows.Scan(&s.FacilityID, &s.Granted, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
