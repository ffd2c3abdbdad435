package cache

import (
	"time"

	subscriptiondomain "github.com/aware88/fresh-crm/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
)

const defaultEntitlementTTL = 45 * time.Second

// EntitlementCache stores resolved plan entitlements for the feature gate.
// The TTL is short so plan changes propagate without explicit invalidation
// on every write path.
type EntitlementCache interface {
	Get(orgID snowflake.ID) (*subscriptiondomain.Entitlement, bool)
	Set(orgID snowflake.ID, entitlement *subscriptiondomain.Entitlement)
	Invalidate(orgID snowflake.ID)
}

type entitlementCache struct {
	entries Cache[snowflake.ID, *subscriptiondomain.Entitlement]
	ttl     time.Duration
}

// NewEntitlementCache returns an in-memory entitlement cache.
func NewEntitlementCache() EntitlementCache {
	return &entitlementCache{
		entries: NewTTLCache[snowflake.ID, *subscriptiondomain.Entitlement](),
		ttl:     defaultEntitlementTTL,
	}
}

func (c *entitlementCache) Get(orgID snowflake.ID) (*subscriptiondomain.Entitlement, bool) {
	return c.entries.Get(orgID)
}

func (c *entitlementCache) Set(orgID snowflake.ID, entitlement *subscriptiondomain.Entitlement) {
	if entitlement == nil {
		return
	}
	c.entries.Set(orgID, entitlement, c.ttl)
}

func (c *entitlementCache) Invalidate(orgID snowflake.ID) {
	c.entries.Delete(orgID)
}
