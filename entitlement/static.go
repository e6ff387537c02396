package entitlement

import (
	"context"
	"sync"
)

// Verify interface is satisfied
var _ Oracle = (*StaticOracle)(nil)

// StaticOracle is an in-memory Oracle for development and testing.
// Grants are keyed by user and product or license.
type StaticOracle struct {
	mu       sync.RWMutex
	products map[string]map[string]string // userID -> productID -> method
	licenses map[string]map[string]string // userID -> licenseID -> productID
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		products: make(map[string]map[string]string),
		licenses: make(map[string]map[string]string),
	}
}

// GrantProduct allows userID to download productID via the given
// method (MethodLicense or MethodAccessPass).
func (o *StaticOracle) GrantProduct(userID, productID, method string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.products[userID] == nil {
		o.products[userID] = make(map[string]string)
	}
	o.products[userID][productID] = method
}

// GrantLicense registers a license owned by userID covering productID.
func (o *StaticOracle) GrantLicense(userID, licenseID, productID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.licenses[userID] == nil {
		o.licenses[userID] = make(map[string]string)
	}
	o.licenses[userID][licenseID] = productID
}

func (o *StaticOracle) CheckAccess(ctx context.Context, query AccessQuery) (*Decision, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if query.LicenseID != "" {
		if productID, ok := o.licenses[query.UserID][query.LicenseID]; ok {
			return &Decision{
				CanDownload: true,
				Method:      MethodLicense,
				ProductID:   productID,
				LicenseID:   query.LicenseID,
			}, nil
		}
	}

	if query.ProductID != "" {
		if method, ok := o.products[query.UserID][query.ProductID]; ok {
			return &Decision{CanDownload: true, Method: method}, nil
		}
	}

	return &Decision{
		CanDownload: false,
		Method:      MethodNone,
		Reason:      "no license or access pass covers this product",
	}, nil
}
