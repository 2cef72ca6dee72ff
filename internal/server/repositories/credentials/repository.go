// Package credentials declares the account store used by the session
// manager and provides Postgres and in-memory implementations.
package credentials

import (
	"context"

	"github.com/dmitrijs2005/patterm/internal/server/models"
)

// Repository stores registered accounts.
type Repository interface {
	// Create fails with common.ErrAlreadyExists when UserID is taken.
	Create(ctx context.Context, c *models.Credential) error

	// Find returns common.ErrNotFound for an unknown user.
	Find(ctx context.Context, userID string) (*models.Credential, error)
}
