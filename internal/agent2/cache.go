package agent2

import (
	"sync"
	"time"

	"github.com/kidoz/zabbix-vuln-matrix/internal/matrix"
)

// ResultCache holds the most recent correlation result in a thread-safe manner.
type ResultCache struct {
	mu      sync.RWMutex
	result  *matrix.Result
	dated   time.Time
	encoded map[string]string
}

// NewResultCache creates a new empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{}
}

// Update replaces the cached result and its pre-encoded discovery documents.
func (c *ResultCache) Update(res *matrix.Result, dated time.Time, discovery map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = res
	c.dated = dated
	c.encoded = discovery
}

// Result returns the cached result (nil until the first load).
func (c *ResultCache) Result() *matrix.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result
}

// Dated returns the creation time of the snapshot behind the result.
func (c *ResultCache) Dated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dated
}

// Discovery returns the cached discovery document for key.
func (c *ResultCache) Discovery(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.encoded[key]
	return v, ok
}
