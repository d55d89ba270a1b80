package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

const argon2idPrefix = "$argon2id$"

// ErrEmptySecret is returned by NewSecret for an empty configured password.
var ErrEmptySecret = errors.New("login secret is empty")

// HashParams are the argon2id parameters used by HashPassword (OWASP minimum).
var HashParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Secret is the single shared login credential.
type Secret struct {
	plain  string
	hashed string
}

// NewSecret builds a Secret from the configured value. A value in argon2id PHC
// format is treated as a hash; anything else is compared as plaintext.
func NewSecret(configured string) (*Secret, error) {
	if configured == "" {
		return nil, ErrEmptySecret
	}
	if strings.HasPrefix(configured, argon2idPrefix) {
		if _, _, _, err := argon2id.DecodeHash(configured); err != nil {
			return nil, fmt.Errorf("decode argon2id secret: %w", err)
		}
		return &Secret{hashed: configured}, nil
	}
	return &Secret{plain: configured}, nil
}

// Verify reports whether submitted matches the secret exactly.
func (s *Secret) Verify(submitted string) bool {
	if s.hashed != "" {
		ok, err := argon2id.ComparePasswordAndHash(submitted, s.hashed)
		return err == nil && ok
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(s.plain)) == 1
}

// Hashed reports whether the secret is stored as an argon2id hash.
func (s *Secret) Hashed() bool {
	return s.hashed != ""
}

// HashPassword returns an argon2id PHC string suitable for the password setting.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptySecret
	}
	return argon2id.CreateHash(password, HashParams)
}
