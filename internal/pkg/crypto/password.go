// Package crypto provides cryptographic utilities for the security component.
// This includes the deterministic password encoder and key generation.
package crypto

import (
	"encoding/base64"

	"golang.org/x/crypto/argon2"

	"github.com/koor-fr/security-component/internal/domain"
)

// defaultSalt is used when no pepper is configured. Deployments should set one.
var defaultSalt = []byte("koor-fr/security-component")

// Argon2Params holds the Argon2id cost parameters.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultArgon2Params returns the RFC 9106 second recommended option.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		KeyLen:  32,
	}
}

// Argon2Encoder encodes passwords with Argon2id using the pepper as a fixed salt.
type Argon2Encoder struct {
	salt   []byte
	params Argon2Params
}

// NewArgon2Encoder creates an encoder. A nil or empty pepper falls back to a
// built-in salt.
func NewArgon2Encoder(pepper []byte, params Argon2Params) *Argon2Encoder {
	salt := make([]byte, len(pepper))
	copy(salt, pepper)
	if len(salt) == 0 {
		salt = defaultSalt
	}
	return &Argon2Encoder{salt: salt, params: params}
}

// Encode returns the base64 (raw, standard alphabet) Argon2id digest of clear.
func (e *Argon2Encoder) Encode(clear string) (string, error) {
	key := argon2.IDKey([]byte(clear), e.salt, e.params.Time, e.params.Memory, e.params.Threads, e.params.KeyLen)
	return base64.RawStdEncoding.EncodeToString(key), nil
}

// Ensure Argon2Encoder implements domain.PasswordEncoder.
var _ domain.PasswordEncoder = (*Argon2Encoder)(nil)
