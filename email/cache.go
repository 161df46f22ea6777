package email

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryQuotaCache keeps the quota in process memory.
type MemoryQuotaCache struct {
	Now     func() time.Time
	mu      sync.Mutex
	state   *QuotaState
	expires time.Time
}

func NewMemoryQuotaCache() *MemoryQuotaCache {
	return &MemoryQuotaCache{Now: time.Now}
}

func (c *MemoryQuotaCache) GetQuota(_ context.Context) (*QuotaState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == nil || !c.now().Before(c.expires) {
		return nil, nil
	}
	state := *c.state
	return &state, nil
}

func (c *MemoryQuotaCache) SetQuota(
	_ context.Context, state *QuotaState, ttl time.Duration,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	saved := *state
	c.state = &saved
	c.expires = c.now().Add(ttl)
	return nil
}

func (c *MemoryQuotaCache) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// MemoryTemplateRegistry is a TemplateRegistry for a single process.
type MemoryTemplateRegistry struct {
	mu    sync.Mutex
	names map[string]struct{}
}

func NewMemoryTemplateRegistry() *MemoryTemplateRegistry {
	return &MemoryTemplateRegistry{names: map[string]struct{}{}}
}

func (r *MemoryTemplateRegistry) IsRegistered(
	_ context.Context, name string,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[name]
	return ok, nil
}

func (r *MemoryTemplateRegistry) Register(
	_ context.Context, name string,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[name]; ok {
		return false, nil
	}
	r.names[name] = struct{}{}
	return true, nil
}

func (r *MemoryTemplateRegistry) Unregister(
	_ context.Context, name string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, name)
	return nil
}

func (r *MemoryTemplateRegistry) Registered(
	_ context.Context,
) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.names))

	for name := range r.names {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
