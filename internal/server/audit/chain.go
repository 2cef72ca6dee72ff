package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/dmitrijs2005/patterm/internal/server/models"
)

// GenesisHash is the prev_hash of the first entry.
var GenesisHash = strings.Repeat("0", sha256.Size*2)

// hashedFields fixes the serialization order of the hashed fields.
type hashedFields struct {
	Seq        int64  `json:"seq"`
	ActorID    string `json:"actor_id"`
	Action     string `json:"action"`
	ResourceID string `json:"resource_id"`
	Timestamp  string `json:"timestamp"`
	Outcome    string `json:"outcome"`
}

// ComputeHash returns hex(sha256(prev_hash || json(fields))) for e. The
// stored Hash field is ignored.
func ComputeHash(e models.AuditEntry) string {
	payload, _ := json.Marshal(hashedFields{
		Seq:        e.Seq,
		ActorID:    e.ActorID,
		Action:     e.Action,
		ResourceID: e.ResourceID,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		Outcome:    e.Outcome,
	})

	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeTime drops precision that the SQL store would not keep, so an
// entry hashes the same before and after a round trip.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
