package storage

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/todo-acl/pkg/auth"
)

// CacheRecorder receives hit/miss notifications
type CacheRecorder interface {
	RecordCacheLookup(cache string, hit bool)
}

const userCacheName = "users"

// CachedUserStore caches FindByUsername results in an expiring LRU. Misses
// and errors are not cached.
type CachedUserStore struct {
	next     UserStore
	cache    *lru.LRU[string, auth.User]
	recorder CacheRecorder
}

// NewCachedUserStore wraps next with a cache of at most size entries living
// for ttl. recorder may be nil.
func NewCachedUserStore(next UserStore, size int, ttl time.Duration, recorder CacheRecorder) *CachedUserStore {
	if size <= 0 {
		size = 1024
	}
	return &CachedUserStore{
		next:     next,
		cache:    lru.NewLRU[string, auth.User](size, nil, ttl),
		recorder: recorder,
	}
}

// FindByUsername returns a copy of the cached user, loading it on a miss
func (c *CachedUserStore) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if u, ok := c.cache.Get(username); ok {
		c.record(true)
		return &u, nil
	}
	c.record(false)

	user, err := c.next.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	c.cache.Add(username, *user)
	return user, nil
}

// Insert stores the user and drops any cached entry for the name
func (c *CachedUserStore) Insert(ctx context.Context, user *auth.User) error {
	if err := c.next.Insert(ctx, user); err != nil {
		return err
	}
	c.cache.Remove(user.Username)
	return nil
}

// List is not cached
func (c *CachedUserStore) List(ctx context.Context) ([]*auth.User, error) {
	return c.next.List(ctx)
}

// Len returns the number of cached users
func (c *CachedUserStore) Len() int {
	return c.cache.Len()
}

func (c *CachedUserStore) record(hit bool) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(userCacheName, hit)
	}
}
