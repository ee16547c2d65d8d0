package control

import (
	"context"

	"go.uber.org/zap"

	"github.com/meshkit/meshhost/internal/runtime"
)

// CheckLink re-delivers a link definition to the named provider if it is
// running here. The handler fires speculatively for every link the host
// observes, so every failure short of a send error is soft: logged and
// swallowed. Providers must treat repeated binds with identical
// arguments as idempotent.
func (c *Controller) CheckLink(ctx context.Context, ld LinkDefinition) error {
	reply := make(chan runtime.Handle, 1)
	if err := c.send(func(c *Controller) {
		reply <- c.providers[ProviderKey{Identity: ld.ProviderID, LinkName: ld.LinkName}]
	}); err != nil {
		return err
	}

	var handle runtime.Handle
	select {
	case handle = <-reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	if handle == nil {
		// Provider not running locally; this link is someone else's.
		return nil
	}

	componentClaims, found, err := c.cache.GetClaims(ctx, ld.ComponentID)
	if err != nil || !found {
		c.log.Warn("skipping link: component claims unavailable",
			zap.String("component_id", ld.ComponentID),
			zap.String("provider_id", ld.ProviderID),
			zap.String("link_name", ld.LinkName),
			zap.Error(err))
		return nil
	}

	msg, err := runtime.EncodeBindRequest(runtime.BindRequest{
		ComponentID:     ld.ComponentID,
		LinkName:        ld.LinkName,
		ContractID:      ld.ContractID,
		Config:          ld.Config,
		ComponentClaims: componentClaims.Raw,
		HostID:          c.hostID,
	})
	if err != nil {
		return err
	}
	inv, err := runtime.NewInvocation(c.hostKey, c.hostID, ld.ProviderID, runtime.OpBindComponent, msg)
	if err != nil {
		return err
	}
	if _, err := handle.Invoke(ctx, inv); err != nil {
		c.log.Warn("bind invocation failed",
			zap.String("component_id", ld.ComponentID),
			zap.String("provider_id", ld.ProviderID),
			zap.String("link_name", ld.LinkName),
			zap.Error(err))
		return nil
	}
	c.log.Debug("link bound",
		zap.String("component_id", ld.ComponentID),
		zap.String("provider_id", ld.ProviderID),
		zap.String("link_name", ld.LinkName))
	return nil
}
