// Package common contains shared constants, sentinel errors and small helpers
// used across Patterm components.
package common

// SessionTokenHeaderName is the gRPC metadata key that carries the opaque
// session token.
const SessionTokenHeaderName = "session_token"

// SessionTokenBytes is the amount of random bytes behind a session token.
const SessionTokenBytes = 32

// PatientKeyBytes is the size of a per-patient AES-256 secret.
const PatientKeyBytes = 32
