// Package blobs stores the encrypted per-patient vault blobs. Blobs are
// opaque here; a Put replaces the whole blob or nothing.
package blobs

import "context"

type Repository interface {
	// Get returns common.ErrNotFound when the patient has no blob.
	Get(ctx context.Context, patientID string) ([]byte, error)

	// Put atomically replaces the blob of patientID.
	Put(ctx context.Context, patientID string, data []byte) error
}
