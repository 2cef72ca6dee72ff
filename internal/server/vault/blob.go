package vault

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/keys"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

// blobMagic prefixes every persisted record: format tag, then the nonce and
// AES-GCM ciphertext produced by keys.Key.Seal.
var blobMagic = []byte("PHV1")

func encodeRecord(k *keys.Key, rec *models.PatientRecord) ([]byte, error) {
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	defer common.WipeByteArray(plaintext)

	sealed, err := k.Seal(plaintext, []byte(k.PatientID()))
	if err != nil {
		return nil, fmt.Errorf("seal record: %w", err)
	}
	return append(append([]byte{}, blobMagic...), sealed...), nil
}

func decodeRecord(k *keys.Key, blob []byte) (*models.PatientRecord, error) {
	if !bytes.HasPrefix(blob, blobMagic) {
		return nil, fmt.Errorf("patient %s: unknown blob format: %w", k.PatientID(), common.ErrVaultCorruption)
	}

	plaintext, err := k.Open(blob[len(blobMagic):], []byte(k.PatientID()))
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(plaintext)

	var rec models.PatientRecord
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return nil, fmt.Errorf("patient %s: decode record: %w", k.PatientID(), common.ErrVaultCorruption)
	}
	return &rec, nil
}
