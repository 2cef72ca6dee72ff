package models

import "time"

// AuditEntry is one link of the global hash chain. Hash covers PrevHash and
// every other field, so a stored entry can be re-hashed on its own.
type AuditEntry struct {
	Seq        int64     `json:"seq"`
	PrevHash   string    `json:"prev_hash"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	ResourceID string    `json:"resource_id"`
	Timestamp  time.Time `json:"timestamp"`
	Outcome    string    `json:"outcome"`
	Hash       string    `json:"hash"`
}
