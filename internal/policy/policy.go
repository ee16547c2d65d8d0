// Package policy decides whether a signed module may be loaded on this
// host.
package policy

import (
	"github.com/meshkit/meshhost/internal/claims"
)

// Authorizer approves or rejects signed claims before a start proceeds.
type Authorizer interface {
	CanLoad(c *claims.Claims) bool
}

// AllowAll approves every module. Used when no policy is configured.
type AllowAll struct{}

func (AllowAll) CanLoad(*claims.Claims) bool { return true }

// CapabilityPolicy restricts loads to trusted issuers and blocks modules
// claiming denied capabilities. Empty TrustedIssuers means any issuer.
type CapabilityPolicy struct {
	TrustedIssuers     []string
	DeniedCapabilities []string
}

func (p *CapabilityPolicy) CanLoad(c *claims.Claims) bool {
	if c == nil {
		return false
	}
	if len(p.TrustedIssuers) > 0 {
		trusted := false
		for _, iss := range p.TrustedIssuers {
			if iss == c.IssuerID() {
				trusted = true
				break
			}
		}
		if !trusted {
			return false
		}
	}
	for _, denied := range p.DeniedCapabilities {
		for _, cap := range c.Mesh.Capabilities {
			if cap == denied {
				return false
			}
		}
		if c.Mesh.ContractID == denied {
			return false
		}
	}
	return true
}
