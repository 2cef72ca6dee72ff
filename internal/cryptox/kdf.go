package cryptox

import (
	"fmt"

	"github.com/hengadev/errsx"
	"golang.org/x/crypto/argon2"

	"github.com/dmitrijs2005/patterm/internal/common"
)

// KDFParams are the argon2id cost parameters stored next to each password
// hash, so hashes made under older parameters keep verifying.
type KDFParams struct {
	Memory      uint32 `json:"memory" yaml:"memory" toml:"memory"`
	Iterations  uint32 `json:"iterations" yaml:"iterations" toml:"iterations"`
	Parallelism uint8  `json:"parallelism" yaml:"parallelism" toml:"parallelism"`
	SaltLength  uint32 `json:"salt_length" yaml:"salt_length" toml:"salt_length"`
	KeyLength   uint32 `json:"key_length" yaml:"key_length" toml:"key_length"`
}

// DefaultKDFParams follows the OWASP argon2id baseline.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      19456,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate rejects parameters below the baseline. The returned error is an
// errsx.Map keyed by field.
func (p KDFParams) Validate() error {
	errs := errsx.Map{}

	if p.Memory < 8192 {
		errs.Set("memory", fmt.Errorf("memory must be at least 8192 KiB, got %d", p.Memory))
	}
	if p.Iterations < 2 {
		errs.Set("iterations", fmt.Errorf("iterations must be at least 2, got %d", p.Iterations))
	}
	if p.Parallelism < 1 {
		errs.Set("parallelism", fmt.Errorf("parallelism must be at least 1, got %d", p.Parallelism))
	}
	if p.SaltLength < 16 {
		errs.Set("salt_length", fmt.Errorf("salt length must be at least 16 bytes, got %d", p.SaltLength))
	}
	if p.KeyLength < 32 {
		errs.Set("key_length", fmt.Errorf("key length must be at least 32 bytes, got %d", p.KeyLength))
	}

	return errs.AsError()
}

// NewSalt returns a random salt of the configured length.
func (p KDFParams) NewSalt() []byte {
	return common.GenerateRandByteArray(int(p.SaltLength))
}

// DeriveKey runs argon2id over password and salt.
func DeriveKey(password, salt []byte, p KDFParams) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
}
