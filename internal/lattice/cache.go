// Package lattice is the client side of the distributed cache: reference
// resolution and claims storage, served by whichever cache provider the
// bootstrap selected.
package lattice

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/meshkit/meshhost/internal/claims"
	"github.com/meshkit/meshhost/internal/keys"
	"github.com/meshkit/meshhost/internal/runtime"
)

// Cache provider operations and their wire types. Every cache provider
// implementation, builtin or external, speaks this contract.
const (
	OpGet  = "Get"
	OpSet  = "Set"
	OpDel  = "Del"
	OpKeys = "Keys"
)

type GetRequest struct {
	Key string `cbor:"key"`
}

type GetResponse struct {
	Value  []byte `cbor:"value,omitempty"`
	Exists bool   `cbor:"exists"`
}

type SetRequest struct {
	Key   string `cbor:"key"`
	Value []byte `cbor:"value"`
}

type DelRequest struct {
	Key string `cbor:"key"`
}

type KeysRequest struct {
	Prefix string `cbor:"prefix,omitempty"`
}

type KeysResponse struct {
	Keys []string `cbor:"keys"`
}

// Key namespaces inside the cache.
const (
	refPrefix    = "oci:"
	claimsPrefix = "claims:"
)

// CacheClient wraps the running cache provider's handle with typed
// operations. Constructed once during bootstrap, read-shared afterwards.
type CacheClient struct {
	handle  runtime.Handle
	hostKey *keys.KeyPair
	log     *zap.Logger
}

func NewCacheClient(handle runtime.Handle, hostKey *keys.KeyPair, log *zap.Logger) *CacheClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &CacheClient{handle: handle, hostKey: hostKey, log: log}
}

// ProviderIdentity is the identity of the provider serving the cache.
func (c *CacheClient) ProviderIdentity() string { return c.handle.Identity() }

func (c *CacheClient) invoke(ctx context.Context, op string, req, resp any) error {
	msg, err := cbor.Marshal(req)
	if err != nil {
		return fmt.Errorf("lattice: marshal %s: %w", op, err)
	}
	inv, err := runtime.NewInvocation(c.hostKey, c.hostKey.PublicKeyID(), c.handle.Identity(), op, msg)
	if err != nil {
		return err
	}
	out, err := c.handle.Invoke(ctx, inv)
	if err != nil {
		return fmt.Errorf("lattice: %s: %w", op, err)
	}
	if resp == nil {
		return nil
	}
	if err := cbor.Unmarshal(out, resp); err != nil {
		return fmt.Errorf("lattice: unmarshal %s response: %w", op, err)
	}
	return nil
}

// Resolve maps a distribution reference to the identity it was last
// recorded against. A miss, or any cache transport failure, reports
// not-found; resolution misses are never errors.
func (c *CacheClient) Resolve(ctx context.Context, reference string) (string, bool) {
	var resp GetResponse
	if err := c.invoke(ctx, OpGet, GetRequest{Key: refPrefix + reference}, &resp); err != nil {
		c.log.Debug("reference resolution failed, treating as miss",
			zap.String("reference", reference), zap.Error(err))
		return "", false
	}
	if !resp.Exists || len(resp.Value) == 0 {
		return "", false
	}
	return string(resp.Value), true
}

// PutReference records a reference -> identity mapping.
func (c *CacheClient) PutReference(ctx context.Context, reference, identity string) error {
	return c.invoke(ctx, OpSet, SetRequest{Key: refPrefix + reference, Value: []byte(identity)}, nil)
}

// GetClaims fetches the stored claim token for an identity. Returns
// (nil, false, nil) on a plain miss.
func (c *CacheClient) GetClaims(ctx context.Context, identity string) (*claims.Claims, bool, error) {
	var resp GetResponse
	if err := c.invoke(ctx, OpGet, GetRequest{Key: claimsPrefix + identity}, &resp); err != nil {
		return nil, false, err
	}
	if !resp.Exists {
		return nil, false, nil
	}
	decoded, err := claims.Decode(string(resp.Value))
	if err != nil {
		return nil, false, fmt.Errorf("lattice: stored claims for %s: %w", identity, err)
	}
	return decoded, true, nil
}

// PutClaims stores a claim token under its subject identity.
func (c *CacheClient) PutClaims(ctx context.Context, token string) error {
	decoded, err := claims.Decode(token)
	if err != nil {
		return fmt.Errorf("lattice: refusing to store invalid claims: %w", err)
	}
	return c.invoke(ctx, OpSet, SetRequest{Key: claimsPrefix + decoded.Subject(), Value: []byte(token)}, nil)
}

// ListReferences returns every recorded reference.
func (c *CacheClient) ListReferences(ctx context.Context) ([]string, error) {
	var resp KeysResponse
	if err := c.invoke(ctx, OpKeys, KeysRequest{Prefix: refPrefix}, &resp); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Keys))
	for _, k := range resp.Keys {
		out = append(out, k[len(refPrefix):])
	}
	return out, nil
}
