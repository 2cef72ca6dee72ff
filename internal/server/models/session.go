package models

import (
	"time"

	"github.com/dmitrijs2005/patterm/internal/cryptox"
)

// Session is the server-side state behind a bearer token. Only the token
// hash is kept.
type Session struct {
	TokenHash  string
	UserID     string
	Role       Role
	FacilityID string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
}

// Credential is a registered account. For patients UserID is the
// patient id.
type Credential struct {
	UserID       string
	PasswordHash []byte
	Salt         []byte
	KDF          cryptox.KDFParams
	Role         Role
	FacilityID   string
	CreatedAt    time.Time
}
