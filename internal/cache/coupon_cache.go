package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/membercore/coupon-service/internal/models"
)

// CouponCache keeps recently looked-up coupons keyed by code so the hot
// validate path skips a store round-trip. Writers must invalidate on every
// mutation; the TTL bounds staleness if one is missed.
type CouponCache struct {
	store *gocache.Cache
}

func NewCouponCache(ttl time.Duration) *CouponCache {
	return &CouponCache{
		store: gocache.New(ttl, 2*ttl),
	}
}

func (c *CouponCache) Get(code string) (*models.Coupon, bool) {
	v, ok := c.store.Get(code)
	if !ok {
		return nil, false
	}
	coupon, ok := v.(*models.Coupon)
	return coupon, ok
}

func (c *CouponCache) Set(coupon *models.Coupon) {
	c.store.SetDefault(coupon.Code, coupon)
}

func (c *CouponCache) Invalidate(code string) {
	c.store.Delete(code)
}
