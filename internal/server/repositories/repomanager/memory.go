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

// MemoryRepositoryManager hands out one shared in-memory repository per
// kind. The DBTX argument is ignored, so a transaction gives no isolation.
type MemoryRepositoryManager struct {
	credentials *credentials.MemoryRepository
	sessions    *sessions.MemoryRepository
	consents    *consent.MemoryRepository
	audit       *audit.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		credentials: credentials.NewMemoryRepository(),
		sessions:    sessions.NewMemoryRepository(),
		consents:    consent.NewMemoryRepository(),
		audit:       audit.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *MemoryRepositoryManager) Credentials(dbx.DBTX) credentials.Repository { return m.credentials }

func (m *MemoryRepositoryManager) Sessions(dbx.DBTX) sessions.Repository { return m.sessions }

func (m *MemoryRepositoryManager) Consents(dbx.DBTX) consent.Repository { return m.consents }

func (m *MemoryRepositoryManager) Audit(dbx.DBTX) audit.Repository { return m.audit }
