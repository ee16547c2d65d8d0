package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meshkit/meshhost/internal/bus"
	"github.com/meshkit/meshhost/internal/claims"
	"github.com/meshkit/meshhost/internal/events"
	"github.com/meshkit/meshhost/internal/keys"
	"github.com/meshkit/meshhost/internal/lattice"
	"github.com/meshkit/meshhost/internal/policy"
	"github.com/meshkit/meshhost/internal/providers/extras"
	"github.com/meshkit/meshhost/internal/providers/kvcache"
	"github.com/meshkit/meshhost/internal/runtime"
)

// CacheLinkName is the link name the bootstrap starts the cache provider
// under.
const CacheLinkName = "default"

// Config is the one-time bootstrap input.
type Config struct {
	Labels            map[string]string
	Authorizer        policy.Authorizer // nil means allow all
	HostKey           *keys.KeyPair     // generated when nil
	AllowLiveUpdates  bool
	StrictUpdateCheck bool

	// CacheProviderRef optionally points at an external cache provider
	// archive. When empty, the embedded kvcache provider is used.
	CacheProviderRef string
	// CacheConfig is the bind-time configuration for the cache
	// provider, typically collected from MESHHOST_CACHE_* env vars.
	CacheConfig map[string]string
}

// Initialize runs the bootstrap sequence and returns the initialized
// controller. Until it returns there is no controller: operations that
// need key material or the cache client are unreachable by construction.
func Initialize(ctx context.Context, deps Deps, cfg Config) (*Controller, error) {
	if deps.Bus == nil || deps.Components == nil || deps.Providers == nil {
		return nil, errors.New("control: bus and execution hosts are required")
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}

	hostKey := cfg.HostKey
	if hostKey == nil {
		var err error
		hostKey, err = keys.Generate(keys.KindHost)
		if err != nil {
			return nil, fmt.Errorf("control: generate host key: %w", err)
		}
	}
	authorizer := cfg.Authorizer
	if authorizer == nil {
		authorizer = policy.AllowAll{}
	}

	c := &Controller{
		log:        deps.Log,
		deps:       deps,
		hostKey:    hostKey,
		hostID:     hostKey.PublicKeyID(),
		authorizer: authorizer,
		flags: runtime.Flags{
			AllowLiveUpdates:  cfg.AllowLiveUpdates,
			StrictUpdateCheck: cfg.StrictUpdateCheck,
		},
		startedAt:  time.Now(),
		inbox:      make(chan command, inboxCapacity),
		quit:       make(chan struct{}),
		labels:     make(map[string]string, len(cfg.Labels)),
		components: make(map[string]runtime.Handle),
		providers:  make(map[ProviderKey]runtime.Handle),
	}
	for k, v := range cfg.Labels {
		c.labels[k] = v
	}

	// Step 2: the builtin extras provider, registered immediately so
	// routing to it works for everything that follows.
	extrasClaims, err := builtinProviderClaims(hostKey, "extras", extras.Contract)
	if err != nil {
		return nil, err
	}
	extrasHandle, err := c.startBootProvider(ctx, []byte(extras.ModuleName), extrasClaims, extras.LinkName, "")
	if err != nil {
		return nil, fmt.Errorf("control: start extras provider: %w", err)
	}
	c.providers[ProviderKey{Identity: extrasClaims.Subject(), LinkName: extras.LinkName}] = extrasHandle

	// Step 3: resolve the cache provider implementation.
	var cachePayload []byte
	var cacheClaims *claims.Claims
	if cfg.CacheProviderRef != "" {
		if deps.Archives == nil {
			return nil, errors.New("control: cache provider reference configured without an archive service")
		}
		cachePayload, cacheClaims, err = deps.Archives.FetchAndVerify(ctx, cfg.CacheProviderRef)
		if err != nil {
			return nil, fmt.Errorf("control: load cache provider %s: %w", cfg.CacheProviderRef, err)
		}
	} else {
		cachePayload = []byte(kvcache.ModuleName)
		cacheClaims, err = builtinProviderClaims(hostKey, "kvcache", kvcache.Contract)
		if err != nil {
			return nil, err
		}
	}

	// Step 4: instantiate it and configure it with a synthetic bind.
	cacheHandle, err := c.startBootProvider(ctx, cachePayload, cacheClaims, CacheLinkName, cfg.CacheProviderRef)
	if err != nil {
		return nil, fmt.Errorf("control: start cache provider: %w", err)
	}
	if err := c.bindCacheProvider(ctx, cacheHandle, cacheClaims.Subject(), cfg.CacheConfig); err != nil {
		return nil, err
	}
	c.providers[ProviderKey{Identity: cacheClaims.Subject(), LinkName: CacheLinkName}] = cacheHandle

	// Step 5: wrap it, announce it, and only then consider the
	// controller initialized.
	c.cache = lattice.NewCacheClient(cacheHandle, hostKey, deps.Log)
	c.events = events.NewPublisher(deps.Bus, c.hostID, deps.Log)
	deps.Bus.Publish(bus.SubjectCacheReady, []byte(cacheClaims.Subject()))
	c.events.Publish(events.Event{Type: events.CacheReady, Identity: cacheClaims.Subject()})
	c.events.Publish(events.Event{Type: events.HostStarted})

	go c.run()
	c.log.Info("controller initialized",
		zap.String("host_id", c.hostID),
		zap.String("cache_provider", cacheClaims.Subject()),
		zap.Int("labels", len(c.labels)))
	return c, nil
}

// builtinProviderClaims synthesizes claims for a provider shipped inside
// the host binary, signed by the host key.
func builtinProviderClaims(hostKey *keys.KeyPair, name, contract string) (*claims.Claims, error) {
	pk, err := keys.Generate(keys.KindProvider)
	if err != nil {
		return nil, fmt.Errorf("control: generate %s provider key: %w", name, err)
	}
	tok, err := claims.Sign(hostKey, pk.PublicKeyID(), claims.Payload{
		Name:       name,
		Provider:   true,
		ContractID: contract,
	})
	if err != nil {
		return nil, fmt.Errorf("control: sign %s provider claims: %w", name, err)
	}
	return claims.Decode(tok)
}

func (c *Controller) startBootProvider(ctx context.Context, payload []byte, cl *claims.Claims, linkName, reference string) (runtime.Handle, error) {
	signing, err := keys.NewSigningContext(c.hostKey)
	if err != nil {
		return nil, err
	}
	return c.deps.Providers.Initialize(ctx, payload, cl, linkName, reference, signing)
}

// bindCacheProvider issues the synthetic bind that configures the cache
// provider before anything depends on it.
func (c *Controller) bindCacheProvider(ctx context.Context, handle runtime.Handle, identity string, config map[string]string) error {
	msg, err := runtime.EncodeBindRequest(runtime.BindRequest{
		Config: config,
		HostID: c.hostID,
	})
	if err != nil {
		return err
	}
	inv, err := runtime.NewInvocation(c.hostKey, c.hostID, identity, runtime.OpBindComponent, msg)
	if err != nil {
		return err
	}
	if _, err := handle.Invoke(ctx, inv); err != nil {
		return fmt.Errorf("control: configure cache provider: %w", err)
	}
	return nil
}
