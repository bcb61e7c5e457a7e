package cache

import (
	"context"
	"sync"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
)

// Resolver returns the caller's family.
type Resolver interface {
	GetFamily(ctx context.Context, who core.Identity) (core.Family, error)
}

// FamilyCache keeps the family read model per user. It is registered as a
// change listener and drops every entry of a family that changed.
type FamilyCache struct {
	entries *LRUCache[core.Family]

	mu       sync.Mutex
	byFamily map[string]map[string]struct{}
	byUser   map[string]string
	// gen counts invalidations. A read that raced with one is not stored.
	gen uint64
}

func NewFamilyCache(maxSize int, ttl time.Duration) *FamilyCache {
	return &FamilyCache{
		entries:  NewLRUCache[core.Family](maxSize, ttl),
		byFamily: make(map[string]map[string]struct{}),
		byUser:   make(map[string]string),
	}
}

func (c *FamilyCache) Get(userID string) (core.Family, bool) {
	return c.entries.Get(userID)
}

func (c *FamilyCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// put stores f for userID unless an invalidation happened after gen was read.
func (c *FamilyCache) put(userID string, f core.Family, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.unindex(userID)
	users, ok := c.byFamily[f.ID]
	if !ok {
		users = make(map[string]struct{})
		c.byFamily[f.ID] = users
	}
	users[userID] = struct{}{}
	c.byUser[userID] = f.ID
	c.entries.Set(userID, f)
}

// unindex drops userID from the family index. c.mu must be held.
func (c *FamilyCache) unindex(userID string) {
	familyID, ok := c.byUser[userID]
	if !ok {
		return
	}
	delete(c.byUser, userID)
	if users := c.byFamily[familyID]; users != nil {
		delete(users, userID)
		if len(users) == 0 {
			delete(c.byFamily, familyID)
		}
	}
}

// FamilyChanged implements family.Listener.
func (c *FamilyCache) FamilyChanged(_ context.Context, change core.FamilyChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, id := range change.FamilyIDs {
		for userID := range c.byFamily[id] {
			c.entries.Delete(userID)
			delete(c.byUser, userID)
		}
		delete(c.byFamily, id)
	}
	if change.ActorID != "" {
		c.entries.Delete(change.ActorID)
		c.unindex(change.ActorID)
	}
}

// CleanExpired drops expired entries and forgets index entries of users the
// LRU no longer holds.
func (c *FamilyCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := c.entries.CleanExpired()
	for userID := range c.byUser {
		if !c.entries.Has(userID) {
			c.unindex(userID)
		}
	}
	return removed
}

func (c *FamilyCache) Size() int {
	return c.entries.Size()
}

// Wrap returns a Resolver that serves repeated reads from the cache.
func (c *FamilyCache) Wrap(next Resolver) Resolver {
	return &cachedResolver{cache: c, next: next}
}

type cachedResolver struct {
	cache *FamilyCache
	next  Resolver
}

func (r *cachedResolver) GetFamily(ctx context.Context, who core.Identity) (core.Family, error) {
	if f, ok := r.cache.Get(who.UserID); ok && who.UserID != "" {
		return f, nil
	}
	gen := r.cache.generation()
	f, err := r.next.GetFamily(ctx, who)
	if err != nil {
		return core.Family{}, err
	}
	r.cache.put(who.UserID, f, gen)
	return f, nil
}
