package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/patterm/internal/dbx"
	"github.com/dmitrijs2005/patterm/internal/server/repositories/audit"
	"github.com/dmitrijs2005/patterm/internal/server/repositories/consent"
	"github.com/dmitrijs2005/patterm/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/patterm/internal/server/repositories/sessions"
)

// RepositoryManager vends the relational repositories bound to a DBTX so
// callers can use them inside or outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Credentials(db dbx.DBTX) credentials.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Consents(db dbx.DBTX) consent.Repository
	Audit(db dbx.DBTX) audit.Repository
}
