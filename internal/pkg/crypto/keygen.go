package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// PepperSize is the length in bytes of the password pepper.
	PepperSize = 32

	// GeneratedPasswordLength is the length of passwords from GeneratePassword.
	GeneratedPasswordLength = 20
)

// passwordChars leaves out characters that are easy to misread (0/O, 1/l/I).
const passwordChars = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789-_.!"

// ErrInvalidHexKey is returned by ParseHexKey for anything but 64 hex digits.
var ErrInvalidHexKey = errors.New("invalid hex key: must be 64 hex characters (32 bytes)")

// GeneratePepper returns a random pepper as 64 hex digits, the format
// accepted by security.password_pepper.
func GeneratePepper() (string, error) {
	pepper := make([]byte, PepperSize)
	if _, err := rand.Read(pepper); err != nil {
		return "", fmt.Errorf("failed to generate pepper: %w", err)
	}
	return hex.EncodeToString(pepper), nil
}

// ParseHexKey decodes a pepper written by GeneratePepper. Surrounding
// whitespace is ignored and an empty string yields a nil key.
func ParseHexKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, nil
	case len(s) != hex.EncodedLen(PepperSize):
		return nil, ErrInvalidHexKey
	}

	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHexKey, err)
	}
	return key, nil
}

// GeneratePassword returns a random password for a new account. Characters
// are drawn uniformly from passwordChars.
func GeneratePassword() (string, error) {
	limit := big.NewInt(int64(len(passwordChars)))

	var b strings.Builder
	b.Grow(GeneratedPasswordLength)
	for b.Len() < GeneratedPasswordLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		b.WriteByte(passwordChars[n.Int64()])
	}
	return b.String(), nil
}
