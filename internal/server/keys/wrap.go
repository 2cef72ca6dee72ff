package keys

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/dmitrijs2005/patterm/internal/filex"
)

// Wrapper protects patient secrets at rest in the key store.
type Wrapper interface {
	Wrap(secret []byte) ([]byte, error)
	Unwrap(wrapped []byte) ([]byte, error)
}

// AgeWrapper encrypts secrets to an age X25519 recipient. The identity file
// lives outside both the key store and the blob store.
type AgeWrapper struct {
	identity *age.X25519Identity
}

var _ Wrapper = (*AgeWrapper)(nil)

func NewAgeWrapper(identity *age.X25519Identity) *AgeWrapper {
	return &AgeWrapper{identity: identity}
}

// NewEphemeralAgeWrapper generates a throwaway identity. Secrets wrapped with
// it are unrecoverable once the process exits.
func NewEphemeralAgeWrapper() (*AgeWrapper, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}
	return NewAgeWrapper(id), nil
}

// LoadOrCreateIdentity reads an age identity from path, generating and
// writing a new one (mode 0600) when the file does not exist.
func LoadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("parsing identity %s: %w", path, err)
		}
		return id, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading identity: %w", err)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}
	if err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating identity file: %w", err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, id.String()+"\n"); err != nil {
		return nil, fmt.Errorf("writing identity: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("syncing identity: %w", err)
	}
	return id, nil
}

func (w *AgeWrapper) Wrap(secret []byte) ([]byte, error) {
	var buf bytes.Buffer

	encWriter, err := age.Encrypt(&buf, w.identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := encWriter.Write(secret); err != nil {
		return nil, fmt.Errorf("wrapping secret: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return nil, fmt.Errorf("finalizing wrap: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *AgeWrapper) Unwrap(wrapped []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(wrapped), w.identity)
	if err != nil {
		return nil, fmt.Errorf("unwrapping secret: %w", err)
	}
	secret, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading unwrapped secret: %w", err)
	}
	return secret, nil
}
