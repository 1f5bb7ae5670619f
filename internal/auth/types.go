package auth

import (
	"errors"
	"time"
)

// ReservedSecretID is the principal id under which the signing secret is stored.
// It can never be registered or logged into.
const ReservedSecretID = "927cde40-41e7-45b1-861a-864f6d6ec269"

// MinPasswordLength is the minimum password length in characters.
const MinPasswordLength = 10

// DefaultTokenTTL is the token lifetime when none is configured.
const DefaultTokenTTL = time.Hour

// Well-known scopes.
const (
	// ScopeSelf grants access to the principal's own entity and notifications.
	ScopeSelf = "self"

	// ScopeUser is carried by the signing-secret record.
	ScopeUser = "user"
)

// Credential is the persisted password record for one principal.
//
// Parameters are stored alongside the hash so that changing the defaults
// never invalidates existing credentials.
type Credential struct {
	Salt       []byte   `json:"salt"`
	Hash       []byte   `json:"hash"`
	Iterations int      `json:"iterations"`
	Digest     string   `json:"digest"`
	Scopes     []string `json:"scopes"`
}

// Token is a signed bearer token and its expiry.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authentication errors.
var (
	ErrAlreadyExists = errors.New("principal already exists")
	ErrWeakPassword  = errors.New("password is too short")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrUnknownDigest = errors.New("unknown digest")
)

func hasAnyScope(have, required []string) bool {
	for _, r := range required {
		for _, h := range have {
			if h == r {
				return true
			}
		}
	}
	return false
}
