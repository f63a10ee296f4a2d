package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// HashParams are argon2id cost parameters. Memory is in KiB.
type HashParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultHashParams is used for account secrets.
var DefaultHashParams = HashParams{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
}

// SessionHashParams is used for refresh-token digests. The raw tokens are
// high-entropy so a cheaper cost keeps the refresh scan bounded.
var SessionHashParams = HashParams{
	Time:    1,
	Memory:  8 * 1024,
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
}

// Hasher produces and verifies salted argon2id digests in PHC format:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
type Hasher struct {
	params HashParams
}

// NewHasher returns a Hasher; zero fields fall back to DefaultHashParams.
func NewHasher(p HashParams) *Hasher {
	if p.Time == 0 {
		p.Time = DefaultHashParams.Time
	}
	if p.Memory == 0 {
		p.Memory = DefaultHashParams.Memory
	}
	if p.Threads == 0 {
		p.Threads = DefaultHashParams.Threads
	}
	if p.KeyLen == 0 {
		p.KeyLen = DefaultHashParams.KeyLen
	}
	if p.SaltLen == 0 {
		p.SaltLen = DefaultHashParams.SaltLen
	}
	if floor := 8 * uint32(p.Threads); p.Memory < floor {
		p.Memory = floor
	}
	return &Hasher{params: p}
}

// Hash digests secret with a fresh random salt.
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("auth: secret is empty")
	}
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(secret), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches digest. bcrypt digests from the
// previous account store are still accepted.
func (h *Hasher) Verify(digest, secret string) (bool, error) {
	if isBcrypt(digest) {
		err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	}
	salt, key, p, err := decodePHC(digest)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(secret), salt, p.Time, p.Memory, p.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") || strings.HasPrefix(digest, "$2b$") || strings.HasPrefix(digest, "$2y$")
}

func decodePHC(encoded string) (salt, key []byte, p HashParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, nil, p, errors.New("invalid PHC hash format")
	}
	if parts[1] != "argon2id" {
		return nil, nil, p, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, p, fmt.Errorf("parse version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, p, fmt.Errorf("unsupported argon2 version %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return nil, nil, p, fmt.Errorf("parse parameters: %w", err)
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, p, fmt.Errorf("decode salt: %w", err)
	}
	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, p, fmt.Errorf("decode hash: %w", err)
	}
	return salt, key, p, nil
}
