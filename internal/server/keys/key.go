package keys

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/cryptox"
)

// Key is a patient's unwrapped secret. The secret itself is never exposed;
// callers can only seal and open data with it.
type Key struct {
	patientID string
	secret    []byte
}

func (k *Key) PatientID() string { return k.patientID }

// Seal encrypts plaintext, binding it to aad.
func (k *Key) Seal(plaintext, aad []byte) ([]byte, error) {
	return cryptox.Seal(k.secret, plaintext, aad)
}

// Open decrypts sealed. Authentication failures map to
// common.ErrVaultCorruption.
func (k *Key) Open(sealed, aad []byte) ([]byte, error) {
	plaintext, err := cryptox.Open(k.secret, sealed, aad)
	if err != nil {
		if errors.Is(err, cryptox.ErrDecrypt) {
			return nil, fmt.Errorf("patient %s: %w", k.patientID, common.ErrVaultCorruption)
		}
		return nil, err
	}
	return plaintext, nil
}

// Wipe zeroes the secret. The key is unusable afterwards.
func (k *Key) Wipe() {
	common.WipeByteArray(k.secret)
}

func (k *Key) String() string   { return "key(" + k.patientID + ")" }
func (k *Key) GoString() string { return k.String() }
