// Package auth provides the credential and session primitives: bcrypt
// password hashing, JWT session tokens, and the middleware that validates
// them on protected routes.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected in
// tests — a lower cost makes hashing run in milliseconds without changing
// the logic being tested.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService at the bcrypt library default
// cost. Each Hash call generates its own random salt, so two accounts with
// the same password never share a hash.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: bcrypt.DefaultCost}
}

// newPasswordServiceWithCost creates a PasswordService with a custom cost.
// Unexported helper used by the tests in this package.
func newPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash hashes the given plaintext password with bcrypt.
//
// The output is a self-contained string (salt and cost embedded) that can be
// stored directly as the account's password_hash.
//
// Returns an error if the plaintext is over 72 bytes — bcrypt would silently
// truncate it, so we reject it explicitly instead.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
// Returns nil on a match. The comparison is constant-time internally, so
// response timing reveals nothing about how close a guess was.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// defaultService backs the package-level helpers used by model.Account.
var defaultService = NewPasswordService()

// HashPassword hashes plaintext at the library default cost.
func HashPassword(plaintext string) (string, error) {
	return defaultService.Hash(plaintext)
}

// VerifyPassword reports whether plaintext matches hash. Any verification
// failure — wrong password or a malformed stored hash — yields false.
func VerifyPassword(hash, plaintext string) bool {
	return defaultService.Verify(hash, plaintext) == nil
}

// LooksHashed reports whether s is shaped like a bcrypt hash. The account
// service uses it to log an anomaly when a stored hash is corrupted; the
// credential check itself already fails closed either way.
func LooksHashed(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
