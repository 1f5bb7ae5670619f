package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"
	"slices"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 defaults.
const (
	DefaultIterations = 10000
	DefaultKeyLength  = 256
	DefaultSaltLength = 64
	DefaultDigest     = "sha256"
)

var digests = map[string]func() hash.Hash{
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// Params are the derivation parameters applied to new credentials.
type Params struct {
	Iterations int
	KeyLength  int
	SaltLength int
	Digest     string
}

// DefaultParams returns the standard derivation parameters.
func DefaultParams() Params {
	return Params{
		Iterations: DefaultIterations,
		KeyLength:  DefaultKeyLength,
		SaltLength: DefaultSaltLength,
		Digest:     DefaultDigest,
	}
}

// DeriveCredential hashes password under a fresh random salt.
func DeriveCredential(password string, scopes []string, p Params) (*Credential, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	key, err := deriveKey(password, salt, p.Iterations, p.KeyLength, p.Digest)
	if err != nil {
		return nil, err
	}

	return &Credential{
		Salt:       salt,
		Hash:       key,
		Iterations: p.Iterations,
		Digest:     p.Digest,
		Scopes:     slices.Clone(scopes),
	}, nil
}

// VerifyCredential re-derives candidate with the stored parameters and
// compares in constant time.
func VerifyCredential(stored *Credential, candidate string) (bool, error) {
	if stored == nil || len(stored.Hash) == 0 {
		return false, nil
	}
	key, err := deriveKey(candidate, stored.Salt, stored.Iterations, len(stored.Hash), stored.Digest)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(stored.Hash, key) == 1, nil
}

func deriveKey(password string, salt []byte, iterations, keyLen int, digest string) ([]byte, error) {
	h, ok := digests[digest]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDigest, digest)
	}
	return pbkdf2.Key([]byte(password), salt, iterations, keyLen, h), nil
}
