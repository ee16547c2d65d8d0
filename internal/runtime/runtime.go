// Package runtime defines the execution host contracts the controller
// drives, plus the two in-process hosts shipped with meshhostd: a
// wazero-backed component host and a builtin provider host.
package runtime

import (
	"context"
	"errors"

	"github.com/meshkit/meshhost/internal/claims"
	"github.com/meshkit/meshhost/internal/keys"
)

// ErrDuplicateInstance is returned by a host asked to instantiate an
// identity (or identity/link pair) it is already running. The controller
// relies on this as the backstop for start races.
var ErrDuplicateInstance = errors.New("runtime: duplicate instance")

// Flags carried through from the controller into instantiation.
type Flags struct {
	AllowLiveUpdates  bool
	StrictUpdateCheck bool
}

// IdentityInfo is the metadata a running instance reports about itself.
type IdentityInfo struct {
	Identity  string `json:"identity"`
	Reference string `json:"reference,omitempty"`
	Name      string `json:"name,omitempty"`
	Revision  int32  `json:"revision,omitempty"`
}

// Handle is an opaque addressable handle to a running instance. The
// controller holds these, never their internals.
type Handle interface {
	Identity() string
	Describe(ctx context.Context) (IdentityInfo, error)
	Invoke(ctx context.Context, inv Invocation) ([]byte, error)
	Stop(ctx context.Context) error
}

// ComponentHost instantiates component payloads.
type ComponentHost interface {
	Initialize(ctx context.Context, payload []byte, c *claims.Claims, reference string, signing *keys.SigningContext, flags Flags) (Handle, error)
}

// ProviderHost instantiates capability provider payloads.
type ProviderHost interface {
	Initialize(ctx context.Context, payload []byte, c *claims.Claims, linkName, reference string, signing *keys.SigningContext) (Handle, error)
}
