package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/meshkit/meshhost/internal/claims"
	"github.com/meshkit/meshhost/internal/keys"
)

// OpBindComponent is the operation a provider receives when a link
// definition names one of its components. Providers must treat repeated
// binds with identical arguments as a no-op.
const OpBindComponent = "bind_component"

// BindRequest is the message body of an OpBindComponent invocation.
type BindRequest struct {
	ComponentID     string            `cbor:"component_id"`
	LinkName        string            `cbor:"link_name"`
	ContractID      string            `cbor:"contract_id"`
	Config          map[string]string `cbor:"config"`
	ComponentClaims string            `cbor:"component_claims,omitempty"`
	HostID          string            `cbor:"host_id"`
}

// EncodeBindRequest serializes a bind request for an invocation body.
func EncodeBindRequest(r BindRequest) ([]byte, error) {
	return cbor.Marshal(r)
}

// DecodeBindRequest deserializes an OpBindComponent message body.
func DecodeBindRequest(msg []byte) (BindRequest, error) {
	var r BindRequest
	if err := cbor.Unmarshal(msg, &r); err != nil {
		return BindRequest{}, fmt.Errorf("runtime: decode bind request: %w", err)
	}
	return r, nil
}

// ProviderModule is a capability provider implemented in-process.
type ProviderModule interface {
	Contract() string
	HandleInvocation(ctx context.Context, operation string, msg []byte) ([]byte, error)
}

// BuiltinProviderHost runs in-process provider modules. The payload bytes
// name a registered module; invocations still cross the boundary as
// signed cbor envelopes so builtin and remote providers behave alike.
type BuiltinProviderHost struct {
	log *zap.Logger

	mu        sync.Mutex
	factories map[string]func() ProviderModule
	running   map[string]*builtinHandle
}

func NewBuiltinProviderHost(log *zap.Logger) *BuiltinProviderHost {
	if log == nil {
		log = zap.NewNop()
	}
	return &BuiltinProviderHost{
		log:       log,
		factories: make(map[string]func() ProviderModule),
		running:   make(map[string]*builtinHandle),
	}
}

// RegisterModule makes a provider implementation available under name.
func (h *BuiltinProviderHost) RegisterModule(name string, factory func() ProviderModule) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.factories[name] = factory
}

func instanceKey(identity, linkName string) string {
	return identity + "/" + linkName
}

// Initialize starts the named module under the claims' subject identity.
func (h *BuiltinProviderHost) Initialize(ctx context.Context, payload []byte, c *claims.Claims, linkName, reference string, signing *keys.SigningContext) (Handle, error) {
	name := string(payload)

	h.mu.Lock()
	defer h.mu.Unlock()
	factory, ok := h.factories[name]
	if !ok {
		return nil, fmt.Errorf("runtime: unknown builtin provider module %q", name)
	}
	key := instanceKey(c.Subject(), linkName)
	if _, ok := h.running[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInstance, key)
	}

	handle := &builtinHandle{
		host:      h,
		key:       key,
		identity:  c.Subject(),
		reference: reference,
		claims:    c,
		module:    factory(),
	}
	h.running[key] = handle
	h.log.Info("builtin provider started",
		zap.String("module", name),
		zap.String("identity", c.Subject()),
		zap.String("link_name", linkName))
	return handle, nil
}

type builtinHandle struct {
	host      *BuiltinProviderHost
	key       string
	identity  string
	reference string
	claims    *claims.Claims
	module    ProviderModule
}

func (b *builtinHandle) Identity() string { return b.identity }

func (b *builtinHandle) Describe(ctx context.Context) (IdentityInfo, error) {
	return IdentityInfo{
		Identity:  b.identity,
		Reference: b.reference,
		Name:      b.claims.Mesh.Name,
		Revision:  b.claims.Mesh.Revision,
	}, nil
}

func (b *builtinHandle) Invoke(ctx context.Context, inv Invocation) ([]byte, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if inv.Target != b.identity {
		return nil, fmt.Errorf("runtime: invocation targeted %s, handle is %s", inv.Target, b.identity)
	}
	return b.module.HandleInvocation(ctx, inv.Operation, inv.Msg)
}

func (b *builtinHandle) Stop(ctx context.Context) error {
	b.host.mu.Lock()
	defer b.host.mu.Unlock()
	delete(b.host.running, b.key)
	return nil
}
