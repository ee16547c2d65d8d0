package lattice_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshkit/meshhost/internal/claims"
	"github.com/meshkit/meshhost/internal/keys"
	"github.com/meshkit/meshhost/internal/lattice"
	"github.com/meshkit/meshhost/internal/providers/kvcache"
	"github.com/meshkit/meshhost/internal/runtime"
)

func newCacheClient(t *testing.T) (*lattice.CacheClient, *keys.KeyPair) {
	t.Helper()
	hostKey, err := keys.Generate(keys.KindHost)
	require.NoError(t, err)

	host := runtime.NewBuiltinProviderHost(nil)
	host.RegisterModule(kvcache.ModuleName, func() runtime.ProviderModule { return kvcache.New() })

	provKey, err := keys.Generate(keys.KindProvider)
	require.NoError(t, err)
	tok, err := claims.Sign(hostKey, provKey.PublicKeyID(), claims.Payload{
		Name: "kvcache", Provider: true, ContractID: kvcache.Contract,
	})
	require.NoError(t, err)
	c, err := claims.Decode(tok)
	require.NoError(t, err)

	handle, err := host.Initialize(context.Background(), []byte(kvcache.ModuleName), c, "default", "", nil)
	require.NoError(t, err)
	return lattice.NewCacheClient(handle, hostKey, nil), hostKey
}

func TestResolveMissAndHit(t *testing.T) {
	cc, _ := newCacheClient(t)
	ctx := context.Background()

	_, ok := cc.Resolve(ctx, "example.dev/billing:1")
	assert.False(t, ok)

	require.NoError(t, cc.PutReference(ctx, "example.dev/billing:1", "Cbilling"))
	id, ok := cc.Resolve(ctx, "example.dev/billing:1")
	require.True(t, ok)
	assert.Equal(t, "Cbilling", id)
}

func TestClaimsRoundTrip(t *testing.T) {
	cc, hostKey := newCacheClient(t)
	ctx := context.Background()

	compKey, err := keys.Generate(keys.KindComponent)
	require.NoError(t, err)
	tok, err := claims.Sign(hostKey, compKey.PublicKeyID(), claims.Payload{Name: "billing"})
	require.NoError(t, err)

	_, found, err := cc.GetClaims(ctx, compKey.PublicKeyID())
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cc.PutClaims(ctx, tok))
	stored, found, err := cc.GetClaims(ctx, compKey.PublicKeyID())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "billing", stored.Mesh.Name)
	assert.Equal(t, compKey.PublicKeyID(), stored.Subject())
}

func TestPutClaimsRejectsInvalidToken(t *testing.T) {
	cc, _ := newCacheClient(t)
	assert.Error(t, cc.PutClaims(context.Background(), "not.a.token"))
}

func TestListReferences(t *testing.T) {
	cc, _ := newCacheClient(t)
	ctx := context.Background()
	require.NoError(t, cc.PutReference(ctx, "a/x:1", "C1"))
	require.NoError(t, cc.PutReference(ctx, "a/y:1", "C2"))

	refs, err := cc.ListReferences(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/x:1", "a/y:1"}, refs)
}
