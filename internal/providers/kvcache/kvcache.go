// Package kvcache is the embedded default lattice cache provider: an
// in-memory key-value store speaking the cache contract. It is used when
// no external cache provider archive is configured.
package kvcache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/meshkit/meshhost/internal/lattice"
	"github.com/meshkit/meshhost/internal/runtime"
)

// ModuleName is the payload string the builtin provider host resolves to
// this implementation.
const ModuleName = "kvcache"

// Contract served by this provider.
const Contract = "mesh:keyvalue"

// Provider is the in-memory cache module.
type Provider struct {
	mu     sync.RWMutex
	data   map[string][]byte
	config map[string]string
	bound  map[string]runtime.BindRequest
}

func New() *Provider {
	return &Provider{
		data:  make(map[string][]byte),
		bound: make(map[string]runtime.BindRequest),
	}
}

func (p *Provider) Contract() string { return Contract }

// HandleInvocation dispatches one decoded invocation. Binds are
// idempotent: a repeated bind for the same component replaces the stored
// configuration and nothing else.
func (p *Provider) HandleInvocation(ctx context.Context, operation string, msg []byte) ([]byte, error) {
	switch operation {
	case runtime.OpBindComponent:
		return nil, p.bind(msg)
	case lattice.OpGet:
		return p.get(msg)
	case lattice.OpSet:
		return nil, p.set(msg)
	case lattice.OpDel:
		return nil, p.del(msg)
	case lattice.OpKeys:
		return p.keys(msg)
	default:
		return nil, fmt.Errorf("kvcache: unsupported operation %q", operation)
	}
}

func (p *Provider) bind(msg []byte) error {
	req, err := runtime.DecodeBindRequest(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if req.ComponentID == "" {
		// Synthetic bootstrap bind carries only configuration.
		p.config = req.Config
		return nil
	}
	p.bound[req.ComponentID] = req
	return nil
}

func (p *Provider) get(msg []byte) ([]byte, error) {
	var req lattice.GetRequest
	if err := cbor.Unmarshal(msg, &req); err != nil {
		return nil, fmt.Errorf("kvcache: decode get: %w", err)
	}
	p.mu.RLock()
	v, ok := p.data[req.Key]
	p.mu.RUnlock()
	return cbor.Marshal(lattice.GetResponse{Value: v, Exists: ok})
}

func (p *Provider) set(msg []byte) error {
	var req lattice.SetRequest
	if err := cbor.Unmarshal(msg, &req); err != nil {
		return fmt.Errorf("kvcache: decode set: %w", err)
	}
	p.mu.Lock()
	p.data[req.Key] = req.Value
	p.mu.Unlock()
	return nil
}

func (p *Provider) del(msg []byte) error {
	var req lattice.DelRequest
	if err := cbor.Unmarshal(msg, &req); err != nil {
		return fmt.Errorf("kvcache: decode del: %w", err)
	}
	p.mu.Lock()
	delete(p.data, req.Key)
	p.mu.Unlock()
	return nil
}

func (p *Provider) keys(msg []byte) ([]byte, error) {
	var req lattice.KeysRequest
	if err := cbor.Unmarshal(msg, &req); err != nil {
		return nil, fmt.Errorf("kvcache: decode keys: %w", err)
	}
	p.mu.RLock()
	var out []string
	for k := range p.data {
		if strings.HasPrefix(k, req.Prefix) {
			out = append(out, k)
		}
	}
	p.mu.RUnlock()
	sort.Strings(out)
	return cbor.Marshal(lattice.KeysResponse{Keys: out})
}

// Config returns the bind-time configuration, for inspection.
func (p *Provider) Config() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}
