package control

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/meshkit/meshhost/internal/bus"
	"github.com/meshkit/meshhost/internal/claims"
	"github.com/meshkit/meshhost/internal/events"
	"github.com/meshkit/meshhost/internal/keys"
	"github.com/meshkit/meshhost/internal/runtime"
)

// checkStartPreconditions runs the synchronous precondition phase on the
// owner goroutine: identity not already running, policy approval.
func (c *Controller) checkStartPreconditions(ctx context.Context, cl *claims.Claims, occupied func(c *Controller) bool) error {
	pre := make(chan error, 1)
	if err := c.send(func(c *Controller) {
		switch {
		case occupied(c):
			pre <- ErrAlreadyRunning
		case !c.authorizer.CanLoad(cl):
			pre <- ErrPermissionDenied
		default:
			pre <- nil
		}
	}); err != nil {
		return err
	}
	select {
	case err := <-pre:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// populateCache is the best-effort side effect after a successful start:
// record the reference mapping and the verified claims. Failure is
// logged, never propagated; the workload is running regardless.
func (c *Controller) populateCache(reference string, cl *claims.Claims) {
	ctx := context.Background()
	if reference != "" {
		if err := c.cache.PutReference(ctx, reference, cl.Subject()); err != nil {
			c.log.Warn("reference cache write failed after start",
				zap.String("reference", reference),
				zap.String("identity", cl.Subject()),
				zap.Error(err))
		}
	}
	if cl.Raw != "" {
		if err := c.cache.PutClaims(ctx, cl.Raw); err != nil {
			c.log.Warn("claims cache write failed after start",
				zap.String("identity", cl.Subject()),
				zap.Error(err))
		}
	}
}

// StartComponent instantiates a component payload. reference may be
// empty when the caller holds only the identity.
func (c *Controller) StartComponent(ctx context.Context, payload []byte, cl *claims.Claims, reference string) error {
	if cl == nil {
		return errors.New("control: start component: nil claims")
	}
	identity := cl.Subject()

	if err := c.checkStartPreconditions(ctx, cl, func(c *Controller) bool {
		_, ok := c.components[identity]
		return ok
	}); err != nil {
		return err
	}

	signing, err := keys.NewSigningContext(c.hostKey)
	if err != nil {
		return fmt.Errorf("control: derive signing context: %w", err)
	}

	// Deferred phase: instantiation happens off the owner goroutine.
	// Other messages may interleave here; the execution host rejects
	// duplicate instantiation as the backstop for that window.
	handle, err := c.deps.Components.Initialize(ctx, payload, cl, reference, signing, c.flags)
	if err != nil {
		if errors.Is(err, runtime.ErrDuplicateInstance) {
			return fmt.Errorf("%w: %s", ErrAlreadyRunning, identity)
		}
		return err
	}

	// Continuation: registration is atomic with respect to every other
	// command, and re-derives the not-already-running check from the
	// state visible now.
	done := make(chan error, 1)
	if err := c.send(func(c *Controller) {
		if _, ok := c.components[identity]; ok {
			go func() { _ = handle.Stop(context.Background()) }()
			done <- fmt.Errorf("%w: %s", ErrAlreadyRunning, identity)
			return
		}
		c.components[identity] = handle
		done <- nil
	}); err != nil {
		_ = handle.Stop(context.Background())
		return err
	}
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	go c.populateCache(reference, cl)
	c.events.Publish(events.Event{Type: events.ComponentStarted, Identity: identity, Reference: reference})
	c.log.Info("component started", zap.String("identity", identity), zap.String("reference", reference))
	return nil
}

// StartProvider instantiates a capability provider under linkName.
func (c *Controller) StartProvider(ctx context.Context, payload []byte, cl *claims.Claims, linkName, reference string) error {
	if cl == nil {
		return errors.New("control: start provider: nil claims")
	}
	key := ProviderKey{Identity: cl.Subject(), LinkName: linkName}

	if err := c.checkStartPreconditions(ctx, cl, func(c *Controller) bool {
		_, ok := c.providers[key]
		return ok
	}); err != nil {
		return err
	}

	signing, err := keys.NewSigningContext(c.hostKey)
	if err != nil {
		return fmt.Errorf("control: derive signing context: %w", err)
	}

	handle, err := c.deps.Providers.Initialize(ctx, payload, cl, linkName, reference, signing)
	if err != nil {
		if errors.Is(err, runtime.ErrDuplicateInstance) {
			return fmt.Errorf("%w: %s/%s", ErrAlreadyRunning, key.Identity, key.LinkName)
		}
		return err
	}

	done := make(chan error, 1)
	if err := c.send(func(c *Controller) {
		if _, ok := c.providers[key]; ok {
			go func() { _ = handle.Stop(context.Background()) }()
			done <- fmt.Errorf("%w: %s/%s", ErrAlreadyRunning, key.Identity, key.LinkName)
			return
		}
		c.providers[key] = handle
		done <- nil
	}); err != nil {
		_ = handle.Stop(context.Background())
		return err
	}
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	go c.populateCache(reference, cl)
	c.events.Publish(events.Event{Type: events.ProviderStarted, Identity: key.Identity, LinkName: linkName, Reference: reference})
	c.log.Info("provider started",
		zap.String("identity", key.Identity),
		zap.String("link_name", linkName),
		zap.String("reference", reference))
	return nil
}

// StopComponent stops the referenced component. Stopping an identity
// that is not running is a no-op, never an error, and produces no
// duplicate unsubscribe or event.
func (c *Controller) StopComponent(ctx context.Context, reference string) error {
	identity := c.resolveReference(ctx, reference)

	done := make(chan bool, 1)
	if err := c.send(func(c *Controller) {
		handle, ok := c.components[identity]
		if ok {
			delete(c.components, identity)
			go func() { _ = handle.Stop(context.Background()) }()
		}
		done <- ok
	}); err != nil {
		return err
	}

	var removed bool
	select {
	case removed = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if !removed {
		return nil
	}

	c.deps.Bus.Unsubscribe(bus.ComponentSubject(identity))
	c.events.Publish(events.Event{Type: events.ComponentStopped, Identity: identity, Reference: reference})
	c.log.Info("component stopped", zap.String("identity", identity))
	return nil
}

// StopProvider stops the referenced provider instance. Like
// StopComponent this is idempotent; unlike it, no lifecycle event is
// published.
func (c *Controller) StopProvider(ctx context.Context, reference, linkName, contractID string) error {
	identity := c.resolveReference(ctx, reference)
	key := ProviderKey{Identity: identity, LinkName: linkName}

	done := make(chan bool, 1)
	if err := c.send(func(c *Controller) {
		handle, ok := c.providers[key]
		if ok {
			delete(c.providers, key)
			go func() { _ = handle.Stop(context.Background()) }()
		}
		done <- ok
	}); err != nil {
		return err
	}

	var removed bool
	select {
	case removed = <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if !removed {
		return nil
	}

	c.deps.Bus.Unsubscribe(bus.ProviderSubject(identity, linkName))
	if contractID != "" {
		c.deps.Bus.Unsubscribe(bus.CapabilitySubject(contractID, linkName))
	}
	c.log.Info("provider stopped",
		zap.String("identity", identity),
		zap.String("link_name", linkName),
		zap.String("contract_id", contractID))
	return nil
}
