package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrNoCheckpointKey    = errors.New("checkpoint key not configured")
	ErrInvalidCheckpoint  = errors.New("invalid checkpoint")
	ErrCheckpointMismatch = errors.New("audit log does not match checkpoint")
)

// CheckpointClaims pin the chain head at the time of signing. A log that
// was truncated or rewritten after that point no longer matches.
type CheckpointClaims struct {
	jwt.RegisteredClaims
	Seq  int64  `json:"seq"`
	Hash string `json:"hash"`
}

// Checkpoint signs the current head with HS256.
func (s *Service) Checkpoint(ctx context.Context) (string, error) {
	if len(s.checkpointKey) == 0 {
		return "", ErrNoCheckpointKey
	}
	seq, hash := s.Head()

	claims := CheckpointClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(s.clock.Now()),
		},
		Seq:  seq,
		Hash: hash,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.checkpointKey)
	if err != nil {
		return "", err
	}

	s.log.Info(ctx, "audit checkpoint issued", "seq", seq, "checkpoint_id", claims.ID)
	return signed, nil
}

// VerifyCheckpoint checks the signature of token and that the stored entry
// at its sequence number still carries its hash.
func (s *Service) VerifyCheckpoint(ctx context.Context, token string) (*CheckpointClaims, error) {
	if len(s.checkpointKey) == 0 {
		return nil, ErrNoCheckpointKey
	}

	claims := &CheckpointClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.checkpointKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}

	if claims.Seq == 0 {
		if claims.Hash != GenesisHash {
			return nil, ErrCheckpointMismatch
		}
		return claims, nil
	}

	entries, err := s.repo.Range(ctx, claims.Seq, claims.Seq)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	if len(entries) != 1 || entries[0].Hash != claims.Hash {
		s.log.Error(ctx, "audit checkpoint mismatch", "seq", claims.Seq, "alert", true)
		return nil, fmt.Errorf("seq %d: %w", claims.Seq, ErrCheckpointMismatch)
	}
	return claims, nil
}
