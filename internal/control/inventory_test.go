package control

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryCompleteness(t *testing.T) {
	f := newFixture(t, Config{Labels: map[string]string{"arch": "x86_64"}})
	ctx := context.Background()

	healthy := f.componentClaims(t, "healthy")
	mute := f.componentClaims(t, "mute")
	require.NoError(t, f.c.StartComponent(ctx, []byte("wasm"), healthy, "oci.example/healthy:1"))
	require.NoError(t, f.c.StartComponent(ctx, []byte("wasm"), mute, ""))

	// Break metadata fetch for one component.
	f.comps.mu.Lock()
	f.comps.instances[mute.Subject()].describeErr = errors.New("handle hung up")
	f.comps.mu.Unlock()

	inv, err := f.c.HostInventory(ctx)
	require.NoError(t, err)

	require.Len(t, inv.Components, 2, "one entry per running component, failures included")
	byID := map[string]int{}
	for i, e := range inv.Components {
		byID[e.Identity] = i
	}
	h := inv.Components[byID[healthy.Subject()]]
	assert.Equal(t, "healthy", h.Name)
	assert.Equal(t, "oci.example/healthy:1", h.Reference)

	m := inv.Components[byID[mute.Subject()]]
	assert.Empty(t, m.Name, "failed fetch leaves metadata empty")
	assert.Empty(t, m.Reference)
	assert.Equal(t, mute.Subject(), m.Identity, "the entry itself is still present")

	// Providers: extras and the cache provider from bootstrap.
	assert.Len(t, inv.Providers, 2)
	assert.Positive(t, inv.Uptime)
}

func TestInventoryTracksStops(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	cl := f.componentClaims(t, "billing")
	require.NoError(t, f.c.StartComponent(ctx, []byte("wasm"), cl, ""))
	inv, err := f.c.HostInventory(ctx)
	require.NoError(t, err)
	assert.Len(t, inv.Components, 1)

	require.NoError(t, f.c.StopComponent(ctx, cl.Subject()))
	inv, err = f.c.HostInventory(ctx)
	require.NoError(t, err)
	assert.Empty(t, inv.Components, "no extras and no leftovers")
}
