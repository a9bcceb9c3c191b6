// Package token caches per-platform authentication tokens, refreshing them
// on demand when close to expiry and collapsing concurrent refreshes for the
// same platform into one in-flight call.
package token

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Token is a cached credential with its expiry.
type Token struct {
	Value  string
	Expiry time.Time
}

// RefreshFunc fetches a fresh token for platform, the shape a platform
// adapter's OAuth client implements.
type RefreshFunc func(ctx context.Context, platform string) (Token, error)

// DefaultRefreshBuffer is how far ahead of expiry a token is proactively
// refreshed.
const DefaultRefreshBuffer = 5 * time.Minute

type entry struct {
	mu    sync.Mutex
	token Token
}

// Provider is the shared token cache described in the concurrency model: one
// entry per platform, each guarded by its own lock so a refresh for one
// platform never blocks callers for another.
type Provider struct {
	clock         clockwork.Clock
	refreshBuffer time.Duration
	refresh       RefreshFunc

	mu      sync.Mutex
	entries map[string]*entry
}

// NewProvider builds a Provider. A zero refreshBuffer falls back to
// DefaultRefreshBuffer.
func NewProvider(clock clockwork.Clock, refreshBuffer time.Duration, refresh RefreshFunc) *Provider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if refreshBuffer <= 0 {
		refreshBuffer = DefaultRefreshBuffer
	}
	return &Provider{
		clock:         clock,
		refreshBuffer: refreshBuffer,
		refresh:       refresh,
		entries:       make(map[string]*entry),
	}
}

func (p *Provider) entryFor(platform string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[platform]
	if !ok {
		e = &entry{}
		p.entries[platform] = e
	}
	return e
}

// GetToken returns the cached token for platform, refreshing it first if it
// is missing or within the refresh buffer of expiry. Concurrent callers for
// the same platform block on the single in-flight refresh rather than each
// triggering their own.
func (p *Provider) GetToken(ctx context.Context, platform string) (string, error) {
	e := p.entryFor(platform)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token.Value == "" || p.needsRefresh(e.token) {
		fresh, err := p.refresh(ctx, platform)
		if err != nil {
			return "", err
		}
		e.token = fresh
	}
	return e.token.Value, nil
}

func (p *Provider) needsRefresh(t Token) bool {
	return !p.clock.Now().Add(p.refreshBuffer).Before(t.Expiry)
}

// Refresh forces a refresh for platform regardless of current expiry,
// exposed for the external TokenProvider contract's explicit Refresh call.
func (p *Provider) Refresh(ctx context.Context, platform string) (string, error) {
	e := p.entryFor(platform)
	e.mu.Lock()
	defer e.mu.Unlock()

	fresh, err := p.refresh(ctx, platform)
	if err != nil {
		return "", err
	}
	e.token = fresh
	return e.token.Value, nil
}
