package kvcache

import (
	"context"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshkit/meshhost/internal/lattice"
	"github.com/meshkit/meshhost/internal/runtime"
)

func get(t *testing.T, p *Provider, key string) lattice.GetResponse {
	t.Helper()
	msg, err := cbor.Marshal(lattice.GetRequest{Key: key})
	require.NoError(t, err)
	out, err := p.HandleInvocation(context.Background(), lattice.OpGet, msg)
	require.NoError(t, err)
	var resp lattice.GetResponse
	require.NoError(t, cbor.Unmarshal(out, &resp))
	return resp
}

func set(t *testing.T, p *Provider, key, value string) {
	t.Helper()
	msg, err := cbor.Marshal(lattice.SetRequest{Key: key, Value: []byte(value)})
	require.NoError(t, err)
	_, err = p.HandleInvocation(context.Background(), lattice.OpSet, msg)
	require.NoError(t, err)
}

func TestSetGetDel(t *testing.T) {
	p := New()

	assert.False(t, get(t, p, "oci:example/billing:1").Exists)

	set(t, p, "oci:example/billing:1", "Cbilling")
	resp := get(t, p, "oci:example/billing:1")
	assert.True(t, resp.Exists)
	assert.Equal(t, "Cbilling", string(resp.Value))

	msg, err := cbor.Marshal(lattice.DelRequest{Key: "oci:example/billing:1"})
	require.NoError(t, err)
	_, err = p.HandleInvocation(context.Background(), lattice.OpDel, msg)
	require.NoError(t, err)
	assert.False(t, get(t, p, "oci:example/billing:1").Exists)
}

func TestKeysWithPrefix(t *testing.T) {
	p := New()
	set(t, p, "oci:a", "1")
	set(t, p, "oci:b", "2")
	set(t, p, "claims:x", "3")

	msg, err := cbor.Marshal(lattice.KeysRequest{Prefix: "oci:"})
	require.NoError(t, err)
	out, err := p.HandleInvocation(context.Background(), lattice.OpKeys, msg)
	require.NoError(t, err)
	var resp lattice.KeysResponse
	require.NoError(t, cbor.Unmarshal(out, &resp))
	assert.Equal(t, []string{"oci:a", "oci:b"}, resp.Keys)
}

func TestBindIsIdempotent(t *testing.T) {
	p := New()
	bind := runtime.BindRequest{
		ComponentID: "Ccomp",
		LinkName:    "default",
		ContractID:  Contract,
		Config:      map[string]string{"TTL": "30s"},
	}
	msg, err := runtime.EncodeBindRequest(bind)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = p.HandleInvocation(context.Background(), runtime.OpBindComponent, msg)
		require.NoError(t, err)
	}
	assert.Len(t, p.bound, 1)
	assert.Equal(t, "30s", p.bound["Ccomp"].Config["TTL"])
}

func TestSyntheticBindStoresConfig(t *testing.T) {
	p := New()
	msg, err := runtime.EncodeBindRequest(runtime.BindRequest{
		Config: map[string]string{"REPLICA_SUBJECT": "mesh.cache.replica"},
		HostID: "Hhost",
	})
	require.NoError(t, err)
	_, err = p.HandleInvocation(context.Background(), runtime.OpBindComponent, msg)
	require.NoError(t, err)
	assert.Equal(t, "mesh.cache.replica", p.Config()["REPLICA_SUBJECT"])
}

func TestUnsupportedOperation(t *testing.T) {
	p := New()
	_, err := p.HandleInvocation(context.Background(), "Flush", nil)
	assert.Error(t, err)
}
