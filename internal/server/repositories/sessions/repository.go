// Package sessions declares the server-side session store. Sessions are
// keyed by the SHA-256 of their bearer token.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/patterm/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) error

	// Find returns common.ErrNotFound for an unknown token hash.
	Find(ctx context.Context, tokenHash string) (*models.Session, error)

	// Revoke stamps the session revoked at the given time. Revoking an
	// already revoked session keeps the first timestamp; an unknown token
	// hash yields common.ErrNotFound.
	Revoke(ctx context.Context, tokenHash string, at time.Time) error
}
