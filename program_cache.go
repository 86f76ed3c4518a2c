package config

import "sync"

// ProgramCache stores compiled expression programs keyed by expression
// source. Implementations must be safe for concurrent use.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// WithProgramCache registers a program cache for the evaluation run.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *evalConfig) {
		cfg.programCache = cache
	}
}

// NewMemoryProgramCache returns a mutex-guarded in-process ProgramCache.
func NewMemoryProgramCache() ProgramCache {
	return &memoryProgramCache{programs: make(map[string]any)}
}

type memoryProgramCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

func (c *memoryProgramCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.programs[key]
	return value, ok
}

func (c *memoryProgramCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs[key] = value
}
