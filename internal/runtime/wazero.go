package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/meshkit/meshhost/internal/claims"
	"github.com/meshkit/meshhost/internal/keys"
)

// WazeroComponentHost executes component payloads as wasm modules on a
// shared wazero runtime with WASI preview 1 available to guests.
type WazeroComponentHost struct {
	log *zap.Logger
	rt  wazero.Runtime

	mu      sync.Mutex
	running map[string]*wazeroHandle
}

func NewWazeroComponentHost(ctx context.Context, log *zap.Logger) *WazeroComponentHost {
	if log == nil {
		log = zap.NewNop()
	}
	rt := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	return &WazeroComponentHost{
		log:     log,
		rt:      rt,
		running: make(map[string]*wazeroHandle),
	}
}

// Close tears down the wazero runtime and every module it hosts.
func (h *WazeroComponentHost) Close(ctx context.Context) error {
	return h.rt.Close(ctx)
}

// Initialize instantiates payload under the claims' subject identity.
// A second instantiation for a still-running identity fails with
// ErrDuplicateInstance.
func (h *WazeroComponentHost) Initialize(ctx context.Context, payload []byte, c *claims.Claims, reference string, signing *keys.SigningContext, flags Flags) (Handle, error) {
	identity := c.Subject()

	h.mu.Lock()
	if _, ok := h.running[identity]; ok {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInstance, identity)
	}
	// Reserve the slot before the (slow) instantiation so a concurrent
	// start for the same identity fails instead of racing.
	h.running[identity] = nil
	h.mu.Unlock()

	cfg := wazero.NewModuleConfig().
		WithName(identity).
		WithStartFunctions() // guests are started explicitly, not at load

	mod, err := h.rt.InstantiateWithConfig(ctx, payload, cfg)
	if err != nil {
		h.mu.Lock()
		delete(h.running, identity)
		h.mu.Unlock()
		return nil, fmt.Errorf("runtime: instantiate component %s: %w", identity, err)
	}

	handle := &wazeroHandle{
		host:      h,
		identity:  identity,
		reference: reference,
		claims:    c,
		flags:     flags,
		mod:       mod,
	}
	h.mu.Lock()
	h.running[identity] = handle
	h.mu.Unlock()

	h.log.Info("component instantiated",
		zap.String("identity", identity),
		zap.String("name", c.Mesh.Name),
		zap.Bool("allow_live_updates", flags.AllowLiveUpdates))
	return handle, nil
}

type wazeroHandle struct {
	host      *WazeroComponentHost
	identity  string
	reference string
	claims    *claims.Claims
	flags     Flags
	mod       api.Module
}

func (w *wazeroHandle) Identity() string { return w.identity }

func (w *wazeroHandle) Describe(ctx context.Context) (IdentityInfo, error) {
	return IdentityInfo{
		Identity:  w.identity,
		Reference: w.reference,
		Name:      w.claims.Mesh.Name,
		Revision:  w.claims.Mesh.Revision,
	}, nil
}

// Invoke calls the guest export named by the invocation's operation.
func (w *wazeroHandle) Invoke(ctx context.Context, inv Invocation) ([]byte, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	fn := w.mod.ExportedFunction(inv.Operation)
	if fn == nil {
		return nil, fmt.Errorf("runtime: component %s does not export %q", w.identity, inv.Operation)
	}
	if _, err := fn.Call(ctx); err != nil {
		return nil, fmt.Errorf("runtime: invoke %s on %s: %w", inv.Operation, w.identity, err)
	}
	return nil, nil
}

func (w *wazeroHandle) Stop(ctx context.Context) error {
	w.host.mu.Lock()
	delete(w.host.running, w.identity)
	w.host.mu.Unlock()
	return w.mod.Close(ctx)
}
