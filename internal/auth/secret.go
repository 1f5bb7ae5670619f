package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/gray-logic-notify/internal/store"
)

// SecretCache holds the deployment's signing secret once it has been loaded.
//
// The secret lives in the credential store under ReservedSecretID. On first
// use the cache loads it, or creates it with PutIfAbsent and re-reads on
// conflict, so concurrent first users across processes converge on the
// one persisted value. Once populated the cache is never invalidated.
type SecretCache struct {
	credentials store.ConditionalStore
	params      Params

	mu     sync.RWMutex
	secret []byte
	group  singleflight.Group
}

// NewSecretCache returns an empty cache over the credential store.
func NewSecretCache(credentials store.ConditionalStore, p Params) *SecretCache {
	return &SecretCache{credentials: credentials, params: p}
}

// Get returns the signing secret, loading or creating it if needed.
func (c *SecretCache) Get(ctx context.Context) ([]byte, error) {
	c.mu.RLock()
	secret := c.secret
	c.mu.RUnlock()
	if secret != nil {
		return secret, nil
	}

	v, err, _ := c.group.Do("secret", func() (any, error) {
		c.mu.RLock()
		cached := c.secret
		c.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		loaded, err := c.loadOrCreate(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.secret = loaded
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil //nolint:forcetypeassert // Only []byte is returned above
}

func (c *SecretCache) loadOrCreate(ctx context.Context) ([]byte, error) {
	existing, err := store.GetJSON[Credential](ctx, c.credentials, ReservedSecretID)
	switch {
	case err == nil:
		return existing.Hash, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("loading signing secret: %w", err)
	}

	// The password is irrelevant; the random salt makes the hash random.
	seed := make([]byte, c.params.SaltLength)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generating signing secret: %w", err)
	}
	created, err := DeriveCredential(string(seed), []string{ScopeUser}, c.params)
	if err != nil {
		return nil, fmt.Errorf("generating signing secret: %w", err)
	}

	ok, err := store.PutJSONIfAbsent(ctx, c.credentials, ReservedSecretID, created)
	if err != nil {
		return nil, fmt.Errorf("persisting signing secret: %w", err)
	}
	if ok {
		return slices.Clone(created.Hash), nil
	}

	// Lost the race to another writer; use theirs.
	winner, err := store.GetJSON[Credential](ctx, c.credentials, ReservedSecretID)
	if err != nil {
		return nil, fmt.Errorf("loading signing secret: %w", err)
	}
	return winner.Hash, nil
}
