package handlers

import (
	"context"
	"time"

	"github.com/dvloznov/finanzas/internal/domain"
	"github.com/dvloznov/finanzas/internal/store"
	"github.com/patrickmn/go-cache"
)

const catalogKey = "catalog"

// CatalogCache memoizes the advisory catalog between writes.
type CatalogCache struct {
	c *cache.Cache
}

// NewCatalogCache creates a cache whose entries expire after ttl.
func NewCatalogCache(ttl time.Duration) *CatalogCache {
	return &CatalogCache{c: cache.New(ttl, 2*ttl)}
}

// Get returns the cached catalog or rebuilds it from repo.
func (cc *CatalogCache) Get(ctx context.Context, repo store.Repository) (domain.Catalog, error) {
	if v, found := cc.c.Get(catalogKey); found {
		return v.(domain.Catalog), nil
	}
	observed, err := repo.Catalog(ctx)
	if err != nil {
		return domain.Catalog{}, err
	}
	merged := store.MergeCatalog(observed)
	cc.c.Set(catalogKey, merged, cache.DefaultExpiration)
	return merged, nil
}

// Invalidate drops the cached catalog.
func (cc *CatalogCache) Invalidate() {
	cc.c.Delete(catalogKey)
}
