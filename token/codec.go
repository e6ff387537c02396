package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/avastel/gatekeeper/helper"
)

// TokenPrefix marks gatekeeper-issued secret strings.
const TokenPrefix = "dlt_"

// secretSuffixLength is the length of the base62 random component mixed
// into every secret.
const secretSuffixLength = 16

// ErrEmptySecret is returned when a Codec is constructed without a
// server secret.
var ErrEmptySecret = errors.New("server secret must not be empty")

// Codec deterministically derives opaque, unguessable secret strings
// from issuance inputs plus random material, keyed with a server
// secret. The secret is injected at construction so it can be rotated
// and tests can pin it.
type Codec struct {
	key []byte
}

// NewCodec creates a Codec keyed with the given server secret.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Codec{key: []byte(secret)}, nil
}

// GenerateSecret produces a new secret token string bound to the given
// issuance inputs. The output is an HMAC-SHA256 over the inputs and a
// fresh random suffix, so it is not invertible to any of them and two
// calls never collide.
func (c *Codec) GenerateSecret(userID, productID, tokenID string, now time.Time) (string, error) {
	suffix, err := helper.GenerateSecretSuffix(secretSuffixLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate random material: %w", err)
	}

	mac := hmac.New(sha256.New, c.key)
	fmt.Fprintf(mac, "%s|%s|%s|%d|%s", userID, productID, tokenID, now.UnixNano(), suffix)

	return TokenPrefix + hex.EncodeToString(mac.Sum(nil)), nil
}

// Equal compares two secret strings in constant time.
func (c *Codec) Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
