package control

import "context"

// matchConstraints is the auction predicate: every constraint key must
// exist in the host labels with an identical value. Empty constraints
// always pass.
func matchConstraints(labels, constraints map[string]string) bool {
	for k, want := range constraints {
		if got, ok := labels[k]; !ok || got != want {
			return false
		}
	}
	return true
}

// AuctionComponent answers whether this host could legally start the
// referenced component under the given constraints. No side effects.
func (c *Controller) AuctionComponent(ctx context.Context, reference string, constraints map[string]string) (bool, error) {
	identity := c.resolveReference(ctx, reference)
	reply := make(chan bool, 1)
	if err := c.send(func(c *Controller) {
		_, running := c.components[identity]
		reply <- !running && matchConstraints(c.labels, constraints)
	}); err != nil {
		return false, err
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// AuctionProvider is the provider-side auction, keyed by identity and
// link name.
func (c *Controller) AuctionProvider(ctx context.Context, reference, linkName string, constraints map[string]string) (bool, error) {
	identity := c.resolveReference(ctx, reference)
	reply := make(chan bool, 1)
	if err := c.send(func(c *Controller) {
		_, running := c.providers[ProviderKey{Identity: identity, LinkName: linkName}]
		reply <- !running && matchConstraints(c.labels, constraints)
	}); err != nil {
		return false, err
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// ComponentRunning reports whether the referenced component is running
// locally. Same resolve-then-lookup as the auction, without the
// constraint check.
func (c *Controller) ComponentRunning(ctx context.Context, reference string) (bool, error) {
	identity := c.resolveReference(ctx, reference)
	reply := make(chan bool, 1)
	if err := c.send(func(c *Controller) {
		_, running := c.components[identity]
		reply <- running
	}); err != nil {
		return false, err
	}
	select {
	case running := <-reply:
		return running, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// ProviderRunning reports whether the referenced provider is running
// locally under the given link name.
func (c *Controller) ProviderRunning(ctx context.Context, reference, linkName string) (bool, error) {
	identity := c.resolveReference(ctx, reference)
	reply := make(chan bool, 1)
	if err := c.send(func(c *Controller) {
		_, running := c.providers[ProviderKey{Identity: identity, LinkName: linkName}]
		reply <- running
	}); err != nil {
		return false, err
	}
	select {
	case running := <-reply:
		return running, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
