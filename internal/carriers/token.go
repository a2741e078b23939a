package carriers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lms-platform/shipping-core/pkg/metrics"
)

// loginTimeout bounds a shared login once it no longer follows any caller
const loginTimeout = 30 * time.Second

// loginFunc exchanges credentials for a bearer token
type loginFunc func(ctx context.Context) (string, error)

// tokenCache holds one bearer token per carrier. Concurrent callers that find
// the cache empty share a single login.
type tokenCache struct {
	carrier string
	ttl     time.Duration
	login   loginFunc
	metrics *metrics.Metrics
	now     func() time.Time
	timeout time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	group     singleflight.Group
}

func newTokenCache(carrier string, ttl time.Duration, login loginFunc, m *metrics.Metrics) *tokenCache {
	return &tokenCache{
		carrier: carrier,
		ttl:     ttl,
		login:   login,
		metrics: m,
		now:     time.Now,
		timeout: loginTimeout,
	}
}

func (c *tokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// Get returns a valid token, logging in when none is cached. The shared
// login runs detached from the caller that started it, so one cancelled
// request does not fail the others waiting on it.
func (c *tokenCache) Get(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	ch := c.group.DoChan("login", func() (interface{}, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}

		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		token, err := c.login(loginCtx)
		c.metrics.RecordTokenRefresh(c.carrier, err == nil)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = token
		c.expiresAt = c.now().Add(c.ttl)
		c.mu.Unlock()
		return token, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops stale if it is still the cached token. A token already
// replaced by another caller's refresh is kept.
func (c *tokenCache) Invalidate(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == stale {
		c.token = ""
		c.expiresAt = time.Time{}
	}
}
