package common

import "errors"

// Caller-visible error taxonomy. Callers should match with errors.Is; the
// transports only ever expose the Kind of an error, never its text.
var (
	ErrAuthentication     = errors.New("authentication error")
	ErrAuthorization      = errors.New("authorization error")
	ErrKeyNotFound        = errors.New("key not found")
	ErrVaultCorruption    = errors.New("vault corruption")
	ErrVaultBusy          = errors.New("vault busy")
	ErrAlreadyExists      = errors.New("already exists")
	ErrConflict           = errors.New("conflict")
	ErrAuditAppendFailure = errors.New("audit append failure")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Request validation.
	ErrValidation = errors.New("validation error")

	// Internal failures with no more specific kind.
	ErrInternal = errors.New("internal error")
)

// Session lifecycle outcomes. They are returned by the session manager and
// folded into ErrAuthentication by the access gate.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionRevoked  = errors.New("session revoked")
	ErrBadCredentials  = errors.New("invalid user id or password")
)

// Authorization details. They are only used for logging; the gate returns
// ErrAuthorization without them.
var (
	ErrRoleDenied    = errors.New("role not permitted")
	ErrConsentDenied = errors.New("no consent on file")
)

// Kind is the caller-facing name of an error class.
type Kind string

const (
	KindOK                 Kind = "ok"
	KindAuthentication     Kind = "authentication_error"
	KindAuthorization      Kind = "authorization_error"
	KindKeyNotFound        Kind = "key_not_found"
	KindVaultCorruption    Kind = "vault_corruption"
	KindVaultBusy          Kind = "vault_busy"
	KindAlreadyExists      Kind = "already_exists"
	KindConflict           Kind = "conflict"
	KindAuditAppendFailure Kind = "audit_append_failure"
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation_error"
	KindInternal           Kind = "internal_error"
)

// kindOrder is checked in sequence. AuditAppendFailure comes first because it
// is joined with the error of the operation it was recording.
var kindOrder = []struct {
	err  error
	kind Kind
}{
	{ErrAuditAppendFailure, KindAuditAppendFailure},
	{ErrVaultCorruption, KindVaultCorruption},
	{ErrAuthentication, KindAuthentication},
	{ErrAuthorization, KindAuthorization},
	{ErrVaultBusy, KindVaultBusy},
	{ErrKeyNotFound, KindKeyNotFound},
	{ErrAlreadyExists, KindAlreadyExists},
	{ErrConflict, KindConflict},
	{ErrNotFound, KindNotFound},
	{ErrValidation, KindValidation},
}

// KindOf classifies err. A nil error is KindOK, anything unknown is
// KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsRetryable reports whether the operation may be retried by the caller.
// Only lock contention qualifies.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVaultBusy)
}

// NeedsOperatorAttention reports errors that indicate data damage or a
// compliance gap and must be surfaced out of band.
func NeedsOperatorAttention(err error) bool {
	return errors.Is(err, ErrVaultCorruption) || errors.Is(err, ErrAuditAppendFailure)
}

// ErrorOf maps a kind back to its sentinel. Clients use it to turn a kind
// received over the wire into an error callers can match with errors.Is.
func ErrorOf(k Kind) error {
	if k == KindOK {
		return nil
	}
	for _, e := range kindOrder {
		if e.kind == k {
			return e.err
		}
	}
	return ErrInternal
}
