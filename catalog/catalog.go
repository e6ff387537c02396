// Package catalog exposes read-only lookups against the product
// catalog and the partner asset registry. The access control core only
// ever asks existence questions and fetches basic metadata; pricing
// and content live elsewhere.
package catalog

import (
	"context"
	"errors"
)

var ErrProductNotFound = errors.New("product not found")

// Product is the subset of catalog metadata the download path needs.
type Product struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	FileKeys []string `json:"file_keys"`
	Active   bool     `json:"active"`
}

// Catalog answers existence and metadata questions by id.
type Catalog interface {
	// ProductExists reports whether a product with the given id exists.
	ProductExists(ctx context.Context, id string) (bool, error)

	// PartnerAssetExists reports whether a partner asset with the
	// given id exists.
	PartnerAssetExists(ctx context.Context, id string) (bool, error)

	// GetProduct fetches product metadata. Returns ErrProductNotFound
	// when the id matches nothing.
	GetProduct(ctx context.Context, id string) (*Product, error)
}
