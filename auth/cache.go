package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-outbound/core"
)

// CredentialCache answers "give me a valid credential", fetching from its
// token source only when the cached value is absent or inside the renew
// window. Refreshes are single-flight: concurrent callers that all observe a
// stale credential share one upstream fetch instead of each issuing their
// own.
type CredentialCache struct {
	source      core.TokenSource
	renewWindow time.Duration
	now         func() time.Time

	mu       sync.Mutex
	current  core.Credential
	inflight *fetchCall
}

type fetchCall struct {
	done chan struct{}
	cred core.Credential
	err  error
}

type CacheOption func(*CredentialCache)

func WithRenewWindow(window time.Duration) CacheOption {
	return func(c *CredentialCache) {
		if window > 0 {
			c.renewWindow = window
		}
	}
}

func WithNow(now func() time.Time) CacheOption {
	return func(c *CredentialCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCredentialCache(source core.TokenSource, opts ...CacheOption) (*CredentialCache, error) {
	if source == nil {
		return nil, fmt.Errorf("auth: token source is required")
	}
	cache := &CredentialCache{
		source:      source,
		renewWindow: core.DefaultCredentialRenewWindow,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cache)
	}
	return cache, nil
}

// Credential returns the cached credential while it is fresh; otherwise it
// joins or starts the single in-flight refresh and returns its result. Fetch
// failures surface as AUTH_FAILURE, non-retryable: the caller must
// re-authenticate, not spin.
func (c *CredentialCache) Credential(ctx context.Context) (core.Credential, error) {
	if c == nil || c.source == nil {
		return core.Credential{}, core.NewAuthError(fmt.Errorf("auth: credential cache is not configured"))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.current.Fresh(c.now(), c.renewWindow) {
		cred := c.current
		c.mu.Unlock()
		return cred, nil
	}
	if c.inflight != nil {
		call := c.inflight
		c.mu.Unlock()
		return c.await(ctx, call)
	}
	call := &fetchCall{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	cred, err := c.source.Token(ctx)
	if err != nil {
		call.err = core.NewAuthError(err)
	} else {
		call.cred = cred
	}

	c.mu.Lock()
	if call.err == nil {
		c.current = call.cred
	}
	c.inflight = nil
	c.mu.Unlock()
	close(call.done)

	return call.cred, call.err
}

func (c *CredentialCache) await(ctx context.Context, call *fetchCall) (core.Credential, error) {
	select {
	case <-call.done:
		return call.cred, call.err
	case <-ctx.Done():
		return core.Credential{}, core.NewAuthError(ctx.Err())
	}
}

// Peek returns the cached credential without triggering a fetch.
func (c *CredentialCache) Peek() core.Credential {
	if c == nil {
		return core.Credential{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NeedsRefresh reports whether the cached credential is absent or inside the
// renew window; used by the refresh scheduler to decide when to enqueue work.
func (c *CredentialCache) NeedsRefresh() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.current.Fresh(c.now(), c.renewWindow)
}

// Invalidate drops the cached credential so the next call fetches anew.
func (c *CredentialCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.current = core.Credential{}
	c.mu.Unlock()
}

var _ core.CredentialProvider = (*CredentialCache)(nil)
