// Package control is the workload scheduling and lifecycle controller:
// the single owner of which components and capability providers run on
// this host. All state mutations happen on one goroutine fed by a
// bounded inbox; handlers that need async work (reference resolution,
// instantiation, bind invocations) perform it off the owner goroutine
// and apply the effect back through the inbox as a continuation.
package control

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meshkit/meshhost/internal/archive"
	"github.com/meshkit/meshhost/internal/bus"
	"github.com/meshkit/meshhost/internal/events"
	"github.com/meshkit/meshhost/internal/keys"
	"github.com/meshkit/meshhost/internal/lattice"
	"github.com/meshkit/meshhost/internal/policy"
	"github.com/meshkit/meshhost/internal/runtime"
)

// inboxCapacity bounds pending controller messages; a full inbox applies
// backpressure to senders rather than dropping.
const inboxCapacity = 1000

// ProviderKey identifies one running provider instance. At most one
// instance runs per key at any time.
type ProviderKey struct {
	Identity string `json:"identity"`
	LinkName string `json:"link_name"`
}

// LinkDefinition couples a component to a provider with configuration.
type LinkDefinition struct {
	ComponentID string            `json:"component_id"`
	ProviderID  string            `json:"provider_id"`
	LinkName    string            `json:"link_name"`
	ContractID  string            `json:"contract_id"`
	Config      map[string]string `json:"config,omitempty"`
}

// Deps are the external collaborators injected at construction.
type Deps struct {
	Bus        bus.Bus
	Components runtime.ComponentHost
	Providers  runtime.ProviderHost
	Archives   *archive.Service // required only when an external cache provider is configured
	Log        *zap.Logger
}

// command is one unit of work executed with exclusive access to state.
type command func(c *Controller)

// Controller is the initialized controller. It only exists after
// Initialize succeeded, so key material, policy and the cache client
// are present by construction; none of them change afterwards.
type Controller struct {
	log  *zap.Logger
	deps Deps

	// Immutable after construction; read-shared by deferred work.
	hostKey    *keys.KeyPair
	hostID     string
	authorizer policy.Authorizer
	flags      runtime.Flags
	cache      *lattice.CacheClient
	events     *events.Publisher
	startedAt  time.Time

	inbox chan command
	quit  chan struct{}

	// Owner-goroutine state. Only commands touch these.
	labels     map[string]string
	components map[string]runtime.Handle
	providers  map[ProviderKey]runtime.Handle
}

// run is the owner goroutine: it applies commands one at a time.
func (c *Controller) run() {
	for {
		select {
		case cmd := <-c.inbox:
			cmd(c)
		case <-c.quit:
			return
		}
	}
}

// send enqueues a command, blocking for backpressure when the inbox is
// full.
func (c *Controller) send(cmd command) error {
	select {
	case c.inbox <- cmd:
		return nil
	case <-c.quit:
		return ErrClosed
	}
}

// Close stops the owner goroutine. Running workloads are not stopped;
// the controller is torn down only with the process.
func (c *Controller) Close() {
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
}

// HostID is the host's public-key identity.
func (c *Controller) HostID() string { return c.hostID }

// Cache exposes the lattice cache client built during bootstrap.
func (c *Controller) Cache() *lattice.CacheClient { return c.cache }

// Uptime reports time since bootstrap completed.
func (c *Controller) Uptime() time.Duration { return time.Since(c.startedAt) }

// SetLabels replaces the host placement labels in whole.
func (c *Controller) SetLabels(ctx context.Context, labels map[string]string) error {
	replaced := make(map[string]string, len(labels))
	for k, v := range labels {
		replaced[k] = v
	}
	done := make(chan struct{})
	if err := c.send(func(c *Controller) {
		c.labels = replaced
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Labels returns a copy of the current host labels.
func (c *Controller) Labels(ctx context.Context) (map[string]string, error) {
	reply := make(chan map[string]string, 1)
	if err := c.send(func(c *Controller) {
		out := make(map[string]string, len(c.labels))
		for k, v := range c.labels {
			out[k] = v
		}
		reply <- out
	}); err != nil {
		return nil, err
	}
	select {
	case labels := <-reply:
		return labels, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunningComponent is the exact-identity lookup used for internal
// routing. No reference resolution happens here.
func (c *Controller) RunningComponent(ctx context.Context, identity string) (runtime.Handle, bool, error) {
	reply := make(chan runtime.Handle, 1)
	if err := c.send(func(c *Controller) {
		reply <- c.components[identity]
	}); err != nil {
		return nil, false, err
	}
	select {
	case h := <-reply:
		return h, h != nil, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// RunningProvider is the exact-key provider lookup, no resolution.
func (c *Controller) RunningProvider(ctx context.Context, identity, linkName string) (runtime.Handle, bool, error) {
	reply := make(chan runtime.Handle, 1)
	if err := c.send(func(c *Controller) {
		reply <- c.providers[ProviderKey{Identity: identity, LinkName: linkName}]
	}); err != nil {
		return nil, false, err
	}
	select {
	case h := <-reply:
		return h, h != nil, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// resolveReference maps a distribution reference through the identity
// cache, falling back to the raw reference when no mapping exists.
func (c *Controller) resolveReference(ctx context.Context, reference string) string {
	if identity, ok := c.cache.Resolve(ctx, reference); ok {
		return identity
	}
	return reference
}
