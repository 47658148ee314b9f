package cache

import (
	"sync"

	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

// CouponCache is a read-through cache for coupon metadata keyed by code.
// Entries are invalidated whenever a usage counter moves, so the validator
// never serves a stale used count across the usage-limit boundary.
type CouponCache struct {
	mu    sync.RWMutex
	store map[string]*models.CouponMeta
}

func NewCouponCache() *CouponCache {
	return &CouponCache{
		store: make(map[string]*models.CouponMeta),
	}
}

func (c *CouponCache) Get(code string) (*models.CouponMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.store[code]
	return meta, ok
}

func (c *CouponCache) Set(code string, meta *models.CouponMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[code] = meta
}

func (c *CouponCache) Invalidate(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, code)
}
