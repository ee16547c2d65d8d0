package control

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meshkit/meshhost/internal/runtime"
)

// ProviderEntry is one provider row in the inventory.
type ProviderEntry struct {
	runtime.IdentityInfo
	LinkName string `json:"link_name"`
}

// Inventory is a point-in-time snapshot of everything running here.
type Inventory struct {
	HostID     string                 `json:"host_id"`
	Labels     map[string]string      `json:"labels"`
	Uptime     time.Duration          `json:"uptime"`
	Components []runtime.IdentityInfo `json:"components"`
	Providers  []ProviderEntry        `json:"providers"`
}

type inventorySnapshot struct {
	labels     map[string]string
	components map[string]runtime.Handle
	providers  map[ProviderKey]runtime.Handle
}

// HostInventory assembles the inventory: the running sets are snapshotted
// under exclusive access, then each handle is asked for its metadata in a
// read-only fan-out. A handle that fails to answer contributes an entry
// with only its identity filled in; it is never omitted.
func (c *Controller) HostInventory(ctx context.Context) (Inventory, error) {
	reply := make(chan inventorySnapshot, 1)
	if err := c.send(func(c *Controller) {
		snap := inventorySnapshot{
			labels:     make(map[string]string, len(c.labels)),
			components: make(map[string]runtime.Handle, len(c.components)),
			providers:  make(map[ProviderKey]runtime.Handle, len(c.providers)),
		}
		for k, v := range c.labels {
			snap.labels[k] = v
		}
		for k, v := range c.components {
			snap.components[k] = v
		}
		for k, v := range c.providers {
			snap.providers[k] = v
		}
		reply <- snap
	}); err != nil {
		return Inventory{}, err
	}

	var snap inventorySnapshot
	select {
	case snap = <-reply:
	case <-ctx.Done():
		return Inventory{}, ctx.Err()
	}

	inv := Inventory{
		HostID:     c.hostID,
		Labels:     snap.labels,
		Uptime:     c.Uptime(),
		Components: make([]runtime.IdentityInfo, len(snap.components)),
		Providers:  make([]ProviderEntry, len(snap.providers)),
	}

	var wg sync.WaitGroup
	i := 0
	for identity, handle := range snap.components {
		wg.Add(1)
		go func(slot int, identity string, handle runtime.Handle) {
			defer wg.Done()
			inv.Components[slot] = c.describe(ctx, identity, handle)
		}(i, identity, handle)
		i++
	}
	i = 0
	for key, handle := range snap.providers {
		wg.Add(1)
		go func(slot int, key ProviderKey, handle runtime.Handle) {
			defer wg.Done()
			inv.Providers[slot] = ProviderEntry{
				IdentityInfo: c.describe(ctx, key.Identity, handle),
				LinkName:     key.LinkName,
			}
		}(i, key, handle)
		i++
	}
	wg.Wait()
	return inv, nil
}

func (c *Controller) describe(ctx context.Context, identity string, handle runtime.Handle) runtime.IdentityInfo {
	info, err := handle.Describe(ctx)
	if err != nil {
		c.log.Warn("identity metadata fetch failed", zap.String("identity", identity), zap.Error(err))
		return runtime.IdentityInfo{Identity: identity}
	}
	return info
}

// PutReference records a reference -> identity mapping directly, for
// callers that already know the binding. Reports whether the write
// succeeded.
func (c *Controller) PutReference(ctx context.Context, reference, identity string) bool {
	if err := c.cache.PutReference(ctx, reference, identity); err != nil {
		c.log.Warn("reference write failed",
			zap.String("reference", reference),
			zap.String("identity", identity),
			zap.Error(err))
		return false
	}
	return true
}
