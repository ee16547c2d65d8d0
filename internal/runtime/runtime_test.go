package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshkit/meshhost/internal/claims"
	"github.com/meshkit/meshhost/internal/keys"
)

func hostKey(t *testing.T) *keys.KeyPair {
	t.Helper()
	k, err := keys.Generate(keys.KindHost)
	require.NoError(t, err)
	return k
}

func providerClaims(t *testing.T, issuer *keys.KeyPair, name string) *claims.Claims {
	t.Helper()
	subj, err := keys.Generate(keys.KindProvider)
	require.NoError(t, err)
	tok, err := claims.Sign(issuer, subj.PublicKeyID(), claims.Payload{
		Name:       name,
		Provider:   true,
		ContractID: "mesh:testing",
	})
	require.NoError(t, err)
	c, err := claims.Decode(tok)
	require.NoError(t, err)
	return c
}

func TestInvocationEncodeDecodeValidate(t *testing.T) {
	hk := hostKey(t)
	inv, err := NewInvocation(hk, "Corigin", "Ptarget", OpBindComponent, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, inv.Validate())

	data, err := inv.Encode()
	require.NoError(t, err)
	decoded, err := DecodeInvocation(data)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, decoded.ID)
	assert.Equal(t, OpBindComponent, decoded.Operation)
	require.NoError(t, decoded.Validate())

	// Retargeting the envelope invalidates its claims.
	decoded.Target = "Pelsewhere"
	assert.Error(t, decoded.Validate())
}

func TestBindRequestRoundTrip(t *testing.T) {
	msg, err := EncodeBindRequest(BindRequest{
		ComponentID: "Ccomp",
		LinkName:    "default",
		ContractID:  "mesh:keyvalue",
		Config:      map[string]string{"URL": "mem://"},
		HostID:      "Hhost",
	})
	require.NoError(t, err)

	r, err := DecodeBindRequest(msg)
	require.NoError(t, err)
	assert.Equal(t, "Ccomp", r.ComponentID)
	assert.Equal(t, "mem://", r.Config["URL"])
}

type echoModule struct{ calls int }

func (m *echoModule) Contract() string { return "mesh:testing" }

func (m *echoModule) HandleInvocation(ctx context.Context, operation string, msg []byte) ([]byte, error) {
	m.calls++
	return append([]byte(operation+":"), msg...), nil
}

func TestBuiltinProviderHost(t *testing.T) {
	hk := hostKey(t)
	h := NewBuiltinProviderHost(nil)
	mod := &echoModule{}
	h.RegisterModule("echo", func() ProviderModule { return mod })

	c := providerClaims(t, hk, "echo")
	handle, err := h.Initialize(context.Background(), []byte("echo"), c, "default", "ref/echo:1", nil)
	require.NoError(t, err)
	assert.Equal(t, c.Subject(), handle.Identity())

	// Duplicate identity/link pair is rejected by the host itself.
	_, err = h.Initialize(context.Background(), []byte("echo"), c, "default", "", nil)
	assert.ErrorIs(t, err, ErrDuplicateInstance)

	// Same identity under a different link name is a distinct instance.
	_, err = h.Initialize(context.Background(), []byte("echo"), c, "backup", "", nil)
	require.NoError(t, err)

	inv, err := NewInvocation(hk, "Hhost", c.Subject(), "ping", []byte("x"))
	require.NoError(t, err)
	out, err := handle.Invoke(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "ping:x", string(out))
	assert.Equal(t, 1, mod.calls)

	info, err := handle.Describe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "echo", info.Name)
	assert.Equal(t, "ref/echo:1", info.Reference)

	require.NoError(t, handle.Stop(context.Background()))
	_, err = h.Initialize(context.Background(), []byte("echo"), c, "default", "", nil)
	require.NoError(t, err)
}

func TestBuiltinProviderHostUnknownModule(t *testing.T) {
	h := NewBuiltinProviderHost(nil)
	c := providerClaims(t, hostKey(t), "ghost")
	_, err := h.Initialize(context.Background(), []byte("nope"), c, "default", "", nil)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicateInstance))
}

func TestBuiltinHandleRejectsMistargetedInvocation(t *testing.T) {
	hk := hostKey(t)
	h := NewBuiltinProviderHost(nil)
	h.RegisterModule("echo", func() ProviderModule { return &echoModule{} })
	c := providerClaims(t, hk, "echo")
	handle, err := h.Initialize(context.Background(), []byte("echo"), c, "default", "", nil)
	require.NoError(t, err)

	inv, err := NewInvocation(hk, "Hhost", "Pother", "ping", nil)
	require.NoError(t, err)
	_, err = handle.Invoke(context.Background(), inv)
	assert.Error(t, err)
}

// emptyWasm is the smallest valid wasm module: magic plus version.
var emptyWasm = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func componentClaims(t *testing.T, issuer *keys.KeyPair, name string) *claims.Claims {
	t.Helper()
	subj, err := keys.Generate(keys.KindComponent)
	require.NoError(t, err)
	tok, err := claims.Sign(issuer, subj.PublicKeyID(), claims.Payload{Name: name, Revision: 1})
	require.NoError(t, err)
	c, err := claims.Decode(tok)
	require.NoError(t, err)
	return c
}

func TestWazeroComponentHost(t *testing.T) {
	ctx := context.Background()
	hk := hostKey(t)
	h := NewWazeroComponentHost(ctx, nil)
	defer func() { _ = h.Close(ctx) }()

	sc, err := keys.NewSigningContext(hk)
	require.NoError(t, err)

	c := componentClaims(t, hk, "blank")
	handle, err := h.Initialize(ctx, emptyWasm, c, "oci.example/blank:1", sc, Flags{})
	require.NoError(t, err)
	assert.Equal(t, c.Subject(), handle.Identity())

	_, err = h.Initialize(ctx, emptyWasm, c, "", sc, Flags{})
	assert.ErrorIs(t, err, ErrDuplicateInstance)

	info, err := handle.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "blank", info.Name)
	assert.Equal(t, "oci.example/blank:1", info.Reference)

	// The empty module exports nothing; invoking an operation fails
	// without tearing the instance down.
	inv, err := NewInvocation(hk, "Hhost", c.Subject(), "handle_request", nil)
	require.NoError(t, err)
	_, err = handle.Invoke(ctx, inv)
	assert.Error(t, err)

	require.NoError(t, handle.Stop(ctx))
	_, err = h.Initialize(ctx, emptyWasm, c, "", sc, Flags{})
	require.NoError(t, err)
}

func TestWazeroComponentHostRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	hk := hostKey(t)
	h := NewWazeroComponentHost(ctx, nil)
	defer func() { _ = h.Close(ctx) }()

	sc, err := keys.NewSigningContext(hk)
	require.NoError(t, err)
	c := componentClaims(t, hk, "garbage")
	_, err = h.Initialize(ctx, []byte("not wasm"), c, "", sc, Flags{})
	require.Error(t, err)

	// The failed slot is released; a retry is allowed.
	_, err = h.Initialize(ctx, emptyWasm, c, "", sc, Flags{})
	require.NoError(t, err)
}
