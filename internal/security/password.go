package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinBcryptCost     = 10
	MaxBcryptCost     = 12
	DefaultBcryptCost = 12

	// bcrypt ignores input past this length.
	MaxSecretBytes = 72
)

var ErrInvalidSecret = errors.New("secret must be a non-empty string of at most 72 bytes")

type PasswordHasher struct {
	cost      int
	dummyHash []byte
}

func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost < MinBcryptCost || cost > MaxBcryptCost {
		return nil, fmt.Errorf("bcrypt cost %d outside [%d,%d]", cost, MinBcryptCost, MaxBcryptCost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("engine-service-portal/dummy"), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &PasswordHasher{cost: cost, dummyHash: dummy}, nil
}

func (h *PasswordHasher) Hash(secret string) (string, error) {
	if secret == "" || len(secret) > MaxSecretBytes {
		return "", ErrInvalidSecret
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(out), nil
}

func (h *PasswordHasher) Verify(secret, encoded string) bool {
	if secret == "" || encoded == "" {
		return false
	}
	if len(secret) > MaxSecretBytes {
		h.Equalize(secret)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(secret)) == nil
}

// Equalize costs about as much as a Verify mismatch.
func (h *PasswordHasher) Equalize(secret string) {
	if len(secret) > MaxSecretBytes {
		secret = secret[:MaxSecretBytes]
	}
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(secret))
}

func (h *PasswordHasher) Cost() int {
	return h.cost
}
