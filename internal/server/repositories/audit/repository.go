// Package audit declares the append-only store behind the audit hash chain
// and provides Postgres, JSON-lines file and in-memory implementations.
package audit

import (
	"context"

	"github.com/dmitrijs2005/patterm/internal/server/models"
)

// Repository persists audit entries. It has no update or delete path.
type Repository interface {
	Append(ctx context.Context, e models.AuditEntry) error

	// Last returns common.ErrNotFound on an empty log.
	Last(ctx context.Context) (*models.AuditEntry, error)

	// Range returns the entries with from <= seq <= to in sequence order.
	Range(ctx context.Context, from, to int64) ([]models.AuditEntry, error)
}
