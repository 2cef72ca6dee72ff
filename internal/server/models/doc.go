// Package models defines the server-side data models: the decrypted
// patient record, audit entries, sessions, credentials and consent state.
package models
