package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidInput is returned when a password or stored hash is missing
// before a comparison is attempted. Passing an absent stored hash into the
// compare routine must fail loudly, never report a mismatch.
var ErrInvalidInput = errors.New("missing password or hash for comparison")

// ErrHashingFailure wraps an underlying bcrypt failure.
var ErrHashingFailure = errors.New("failed to hash password")

// Hasher performs one-way password hashing with a tunable work factor.
type Hasher struct {
	cost int
}

// NewHasher constructs a Hasher. Costs outside bcrypt's supported range
// fall back to the default cost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// HashPassword returns the bcrypt hash of password.
func (h *Hasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrInvalidInput
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashingFailure, err)
	}
	return string(hashed), nil
}

// VerifyPassword reports whether password matches the stored hash.
// A mismatch is (false, nil); an error means the comparison could not be
// performed at all.
func (h *Hasher) VerifyPassword(password, hash string) (bool, error) {
	if password == "" || hash == "" {
		return false, ErrInvalidInput
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
