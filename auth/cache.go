package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kilianp07/teslamqtt/core/model"
)

// RefreshFunc obtains a fresh access token.
type RefreshFunc func(ctx context.Context) (model.AccessToken, error)

// TokenCache holds at most one access token and coalesces concurrent
// refreshes into a single call.
type TokenCache struct {
	mu    sync.Mutex
	token *model.AccessToken
	group singleflight.Group
	now   func() time.Time
}

// NewTokenCache returns an empty cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// Get returns the cached token while it is valid. Otherwise it joins the
// in-flight refresh or starts one. The refresh is not tied to the caller's
// context: a caller giving up does not cancel it for the others.
func (c *TokenCache) Get(ctx context.Context, refresh RefreshFunc) (model.AccessToken, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan("access-token", func() (any, error) {
		// a refresh may have finished since the check above
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		tok, err := refresh(detached)
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.token = nil
			return nil, err
		}
		c.token = &tok
		return tok, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return model.AccessToken{}, res.Err
		}
		return res.Val.(model.AccessToken), nil
	case <-ctx.Done():
		return model.AccessToken{}, ctx.Err()
	}
}

func (c *TokenCache) cached() (model.AccessToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil && c.token.Valid(c.now()) {
		return *c.token, true
	}
	return model.AccessToken{}, false
}

// Set stores tok as the cached token.
func (c *TokenCache) Set(tok model.AccessToken) {
	c.mu.Lock()
	c.token = &tok
	c.mu.Unlock()
}

// Invalidate drops the cached token so the next Get refreshes.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}
