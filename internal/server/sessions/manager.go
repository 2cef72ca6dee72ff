// Package sessions is the Session Manager. It registers credentials,
// verifies passwords and issues opaque bearer tokens whose state lives
// server-side, so revocation takes effect on the next request.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hengadev/errsx"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/cryptox"
	"github.com/dmitrijs2005/patterm/internal/dbx"
	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/server/models"
	"github.com/dmitrijs2005/patterm/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/patterm/internal/timex"
)

const MinPasswordLength = 8

type Manager struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	clock       timex.Clock
	ttl         time.Duration
	kdf         cryptox.KDFParams
	log         logging.Logger

	// dummy credential checked for unknown users so they cost the same
	// KDF work as known ones
	dummySalt []byte
	dummyHash []byte
}

// NewManager builds a Manager. db may be nil when m is an in-memory
// manager; transactions are then skipped.
func NewManager(db *sql.DB, m repomanager.RepositoryManager, clock timex.Clock, ttl time.Duration, kdf cryptox.KDFParams, log logging.Logger) *Manager {
	salt := kdf.NewSalt()
	return &Manager{
		db:          db,
		repomanager: m,
		clock:       clock,
		ttl:         ttl,
		kdf:         kdf,
		log:         log.With("module", "sessions"),
		dummySalt:   salt,
		dummyHash:   cryptox.DeriveKey(common.GenerateRandByteArray(16), salt, kdf),
	}
}

func (m *Manager) withTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if m.db == nil {
		return fn(ctx, nil)
	}
	return dbx.WithTx(ctx, m.db, nil, fn)
}

func authError(reason error) error {
	return fmt.Errorf("%w: %w", common.ErrAuthentication, reason)
}

func validateIdentity(userID string, role models.Role, facilityID string) errsx.Map {
	errs := errsx.Map{}
	if strings.TrimSpace(userID) == "" {
		errs.Set("user_id", fmt.Errorf("required"))
	}
	if !role.Valid() {
		errs.Set("role", fmt.Errorf("unknown role %s", role))
	}
	if role.FacilityScoped() && facilityID == "" {
		errs.Set("facility_id", fmt.Errorf("required for role %s", role))
	}
	if !role.FacilityScoped() && facilityID != "" {
		errs.Set("facility_id", fmt.Errorf("not allowed for role %s", role))
	}
	return errs
}

// Register stores a credential for userID. For patients userID is the
// patient id.
func (m *Manager) Register(ctx context.Context, userID, password string, role models.Role, facilityID string) error {
	errs := validateIdentity(userID, role, facilityID)
	if len(password) < MinPasswordLength {
		errs.Set("password", fmt.Errorf("at least %d characters", MinPasswordLength))
	}
	if err := errs.AsError(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	salt := m.kdf.NewSalt()
	c := &models.Credential{
		UserID:       userID,
		PasswordHash: cryptox.DeriveKey([]byte(password), salt, m.kdf),
		Salt:         salt,
		KDF:          m.kdf,
		Role:         role,
		FacilityID:   facilityID,
		CreatedAt:    m.clock.Now(),
	}

	if err := m.repomanager.Credentials(m.db).Create(ctx, c); err != nil {
		return err
	}
	m.log.Info(ctx, "credential registered", "user_id", userID, "role", role.String())
	return nil
}

// Authenticate verifies password against the stored credential of userID.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (m *Manager) Authenticate(ctx context.Context, userID, password string) (*models.Credential, error) {
	c, err := m.repomanager.Credentials(m.db).Find(ctx, userID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("credential store: %w", err)
		}
		cryptox.Equal(cryptox.DeriveKey([]byte(password), m.dummySalt, m.kdf), m.dummyHash)
		m.log.Info(ctx, "authentication failed", "user_id", userID)
		return nil, authError(common.ErrBadCredentials)
	}

	candidate := cryptox.DeriveKey([]byte(password), c.Salt, c.KDF)
	defer common.WipeByteArray(candidate)
	if !cryptox.Equal(candidate, c.PasswordHash) {
		m.log.Info(ctx, "authentication failed", "user_id", userID)
		return nil, authError(common.ErrBadCredentials)
	}
	return c, nil
}

// Issue creates a session and returns its bearer token. The token itself
// is never stored.
func (m *Manager) Issue(ctx context.Context, userID string, role models.Role, facilityID string) (string, *models.Session, error) {
	if err := validateIdentity(userID, role, facilityID).AsError(); err != nil {
		return "", nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	token, err := common.MakeRandHexString(common.SessionTokenBytes)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	now := m.clock.Now()
	s := &models.Session{
		TokenHash:  cryptox.HashToken(token),
		UserID:     userID,
		Role:       role,
		FacilityID: facilityID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.repomanager.Sessions(m.db).Create(ctx, s); err != nil {
		return "", nil, fmt.Errorf("session store: %w", err)
	}

	m.log.Info(ctx, "session issued", "user_id", userID, "role", role.String(), "expires_at", s.ExpiresAt)
	return token, s, nil
}

// IssueSession authenticates userID and issues a session carrying the role
// and facility of the credential.
func (m *Manager) IssueSession(ctx context.Context, userID, password string) (string, *models.Session, error) {
	c, err := m.Authenticate(ctx, userID, password)
	if err != nil {
		return "", nil, err
	}
	return m.Issue(ctx, c.UserID, c.Role, c.FacilityID)
}

// Validate returns the active session behind token. Revoked and expired
// sessions are reported as distinct errors, both wrapping
// common.ErrAuthentication.
func (m *Manager) Validate(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, authError(common.ErrSessionNotFound)
	}

	s, err := m.repomanager.Sessions(m.db).Find(ctx, cryptox.HashToken(token))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, authError(common.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("session store: %w", err)
	}

	switch {
	case s.Revoked:
		return nil, authError(common.ErrSessionRevoked)
	case !m.clock.Now().Before(s.ExpiresAt):
		return nil, authError(common.ErrSessionExpired)
	}
	return s, nil
}

// Revoke ends the session behind token. Revoking an already revoked or
// expired session is a no-op: both states are terminal.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	hash := cryptox.HashToken(token)

	return m.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := m.repomanager.Sessions(tx)

		s, err := repo.Find(ctx, hash)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return authError(common.ErrSessionNotFound)
			}
			return fmt.Errorf("session store: %w", err)
		}

		now := m.clock.Now()
		if s.Revoked || !now.Before(s.ExpiresAt) {
			return nil
		}
		if err := repo.Revoke(ctx, hash, now); err != nil {
			return fmt.Errorf("session store: %w", err)
		}

		m.log.Info(ctx, "session revoked", "user_id", s.UserID)
		return nil
	})
}
