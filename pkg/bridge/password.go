// Copyright 2024-2026 Aiku AI

package bridge

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.mau.fi/util/random"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for admin password hashes.
const (
	argonMemory      = 64 * 1024
	argonIterations  = 3
	argonParallelism = 2
	argonSaltLength  = 16
	argonKeyLength   = 32
)

const argonPrefix = "$argon2id$"

// HashPassword encodes a password as an Argon2id hash suitable for the
// bridge.auth.password config field.
func HashPassword(password string) string {
	salt := random.Bytes(argonSaltLength)
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

// Bounds accepted for configured hashes. The upper limits keep a bad config
// from costing more than a few seconds or a gigabyte per /auth.
const (
	maxArgonMemory     = 1 << 20 // KiB
	maxArgonIterations = 64
	minArgonSaltLength = 8
	minArgonKeyLength  = 16
	maxArgonKeyLength  = 1024
)

type argonHash struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parseArgonHash(encoded string) (*argonHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, errors.New("invalid argon2id hash format")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("invalid argon2id version: %w", err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2id version %d", version)
	}
	var h argonHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.iterations, &h.parallelism); err != nil {
		return nil, fmt.Errorf("invalid argon2id parameters: %w", err)
	}
	switch {
	case h.parallelism == 0:
		return nil, errors.New("argon2id parallelism must be at least 1")
	case h.iterations == 0 || h.iterations > maxArgonIterations:
		return nil, fmt.Errorf("argon2id iterations must be between 1 and %d", maxArgonIterations)
	case h.memory < 8*uint32(h.parallelism) || h.memory > maxArgonMemory:
		return nil, fmt.Errorf("argon2id memory must be between %d and %d KiB", 8*uint32(h.parallelism), maxArgonMemory)
	}
	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("invalid argon2id salt: %w", err)
	}
	if len(h.salt) < minArgonSaltLength {
		return nil, fmt.Errorf("argon2id salt must be at least %d bytes", minArgonSaltLength)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("invalid argon2id hash: %w", err)
	}
	if len(h.key) < minArgonKeyLength || len(h.key) > maxArgonKeyLength {
		return nil, fmt.Errorf("argon2id hash must be between %d and %d bytes", minArgonKeyLength, maxArgonKeyLength)
	}
	return &h, nil
}

// ValidatePassword checks a configured password once at load time. Plain
// text is always accepted; an Argon2id hash must parse and stay within the
// accepted cost bounds.
func ValidatePassword(configured string) error {
	if !strings.HasPrefix(configured, argonPrefix) {
		return nil
	}
	_, err := parseArgonHash(configured)
	return err
}

// CheckPassword compares a candidate with the configured password, which
// may be plain text or an Argon2id hash.
func CheckPassword(configured, candidate string) (bool, error) {
	if configured == "" {
		return false, nil
	}
	if !strings.HasPrefix(configured, argonPrefix) {
		return subtle.ConstantTimeCompare([]byte(configured), []byte(candidate)) == 1, nil
	}
	h, err := parseArgonHash(configured)
	if err != nil {
		return false, err
	}
	actual := argon2.IDKey([]byte(candidate), h.salt, h.iterations, h.memory, h.parallelism, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(h.key, actual) == 1, nil
}
