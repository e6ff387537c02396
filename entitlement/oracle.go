// Package entitlement consumes the platform's entitlement service, the
// source of truth for "may this user download this product right now".
// Decisions are authoritative and never cached beyond a single
// issuance.
package entitlement

import (
	"context"
)

// Access methods reported by the oracle.
const (
	MethodLicense    = "license"
	MethodAccessPass = "access_pass"
	MethodNone       = "none"
)

// AccessQuery identifies the user and the thing they want. Exactly one
// of ProductID or LicenseID may be empty.
type AccessQuery struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id,omitempty"`
	LicenseID string `json:"license_id,omitempty"`
}

// Decision is the oracle's answer. ProductID is filled in when the
// query was made by license id, so callers can resolve the covered
// product without a second round trip.
type Decision struct {
	CanDownload bool   `json:"can_download"`
	Method      string `json:"method"`
	Reason      string `json:"reason,omitempty"`
	ProductID   string `json:"product_id,omitempty"`
	LicenseID   string `json:"license_id,omitempty"`
	AccessPass  string `json:"access_pass,omitempty"`
}

// Oracle answers access queries.
type Oracle interface {
	CheckAccess(ctx context.Context, query AccessQuery) (*Decision, error)
}
