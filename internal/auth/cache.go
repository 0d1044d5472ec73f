// Package auth holds the process-wide Drive credential. The credential is
// acquired lazily from a Provider on first use, shared by every request, and
// dropped when the backend rejects it so the next caller acquires a fresh one.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultScheme is the authorization scheme the Drive v2 API accepts for
// access tokens issued to installed applications.
const DefaultScheme = "OAuth"

// ErrNoCredential is returned when a provider yields an empty token.
var ErrNoCredential = errors.New("auth: provider returned an empty token")

// Provider acquires an access token. Acquire may block on user interaction
// or a network round trip.
type Provider interface {
	Acquire(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (string, error)

// Acquire calls f.
func (f ProviderFunc) Acquire(ctx context.Context) (string, error) {
	return f(ctx)
}

// Credential is an access token plus the scheme used to render it.
type Credential struct {
	Token  string
	Scheme string
}

// Header returns the Authorization header value.
func (c Credential) Header() string {
	return c.Scheme + " " + c.Token
}

// Cache holds at most one credential. Concurrent callers that find the cache
// empty share a single acquisition.
type Cache struct {
	provider Provider
	scheme   string
	logger   *slog.Logger

	mu   sync.Mutex
	cred *Credential
	// gen increments on every Invalidate so an acquisition that started
	// before the invalidation does not repopulate the cache.
	gen uint64

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithScheme overrides the authorization scheme (e.g. "Bearer").
func WithScheme(scheme string) Option {
	return func(c *Cache) {
		c.scheme = scheme
	}
}

// NewCache creates an empty credential cache backed by provider.
func NewCache(provider Provider, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		provider: provider,
		scheme:   DefaultScheme,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Credential returns the cached credential, acquiring one if the cache is
// empty. Provider errors are returned wrapped; nothing is retried.
func (c *Cache) Credential(ctx context.Context) (Credential, error) {
	c.mu.Lock()
	if c.cred != nil {
		cred := *c.cred
		c.mu.Unlock()

		return cred, nil
	}
	gen := c.gen
	c.mu.Unlock()

	// The fetch is shared by every caller of this generation, so it must
	// outlive the caller that happened to start it.
	shared := context.WithoutCancel(ctx)

	ch := c.group.DoChan(fmt.Sprintf("credential-%d", gen), func() (any, error) {
		return c.acquire(shared, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}

		cred, _ := res.Val.(Credential) //nolint:errcheck // acquire only returns Credential

		return cred, nil
	case <-ctx.Done():
		return Credential{}, fmt.Errorf("auth: waiting for credential: %w", ctx.Err())
	}
}

// Authorization returns the rendered Authorization header value.
func (c *Cache) Authorization(ctx context.Context) (string, error) {
	cred, err := c.Credential(ctx)
	if err != nil {
		return "", err
	}

	return cred.Header(), nil
}

// Invalidate discards the cached credential. Called by the request layer
// when the backend answers 401, and by a full cache reset.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cred != nil {
		c.logger.Info("credential invalidated")
	}

	c.cred = nil
	c.gen++
}

func (c *Cache) acquire(ctx context.Context, gen uint64) (Credential, error) {
	c.logger.Debug("acquiring credential")

	tok, err := c.provider.Acquire(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("auth: acquiring credential: %w", err)
	}

	if tok == "" {
		return Credential{}, ErrNoCredential
	}

	cred := Credential{Token: tok, Scheme: c.scheme}

	c.mu.Lock()
	if c.gen == gen {
		c.cred = &cred
	}
	c.mu.Unlock()

	c.logger.Debug("credential acquired")

	return cred, nil
}
