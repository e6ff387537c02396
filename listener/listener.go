// Package listener abstracts the network frontends that expose the
// download access API.
package listener

import "context"

// Listener is a network frontend serving the API until its context is
// cancelled or Stop is called.
type Listener interface {
	Addr() string
	Start(ctx context.Context) error
	Stop() error
	Type() string
}
