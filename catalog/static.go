package catalog

import (
	"context"
	"sync"
)

// Verify interface is satisfied
var _ Catalog = (*StaticCatalog)(nil)

// StaticCatalog is an in-memory Catalog for development and testing.
type StaticCatalog struct {
	mu       sync.RWMutex
	products map[string]*Product
	assets   map[string]struct{}
}

func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		products: make(map[string]*Product),
		assets:   make(map[string]struct{}),
	}
}

// AddProduct registers a product.
func (c *StaticCatalog) AddProduct(p *Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// AddPartnerAsset registers a partner asset id.
func (c *StaticCatalog) AddPartnerAsset(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets[id] = struct{}{}
}

func (c *StaticCatalog) ProductExists(ctx context.Context, id string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.products[id]
	return ok, nil
}

func (c *StaticCatalog) PartnerAssetExists(ctx context.Context, id string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.assets[id]
	return ok, nil
}

func (c *StaticCatalog) GetProduct(ctx context.Context, id string) (*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	clone := *p
	return &clone, nil
}
