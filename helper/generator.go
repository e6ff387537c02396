package helper

import (
	"crypto/rand"

	"github.com/hashicorp/go-secure-stdlib/base62"
	"github.com/hashicorp/go-uuid"
	"github.com/oklog/ulid"
)

// GenerateTokenID generates a random UUID suitable for token
// identifiers.
func GenerateTokenID() (string, error) {
	return uuid.GenerateUUID()
}

// GenerateSecretSuffix generates cryptographically secure base62 random
// material of the given length, used as the random component of token
// secret strings.
func GenerateSecretSuffix(length int) (string, error) {
	return base62.Random(length)
}

// GenerateActivityID generates a lexically time-sortable identifier
// for append-only activity rows.
func GenerateActivityID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
