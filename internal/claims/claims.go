// Package claims handles the signed claim tokens embedded in component and
// provider payloads, plus the short-lived tokens minted per invocation.
//
// A claim token is a JWT signed with the issuer's ed25519 key; the issuer
// field carries the signer's public-key identity, so tokens are
// self-verifying without a key registry.
package claims

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/meshkit/meshhost/internal/keys"
)

// Payload is the mesh-specific claim set describing a signed module.
type Payload struct {
	Name         string   `json:"name,omitempty"`
	Version      string   `json:"version,omitempty"`
	Revision     int32    `json:"revision,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	ContractID   string   `json:"contract_id,omitempty"`
	Provider     bool     `json:"provider,omitempty"`
}

// Claims is the full decoded token. Raw carries the encoded form it was
// decoded from, so verified claims can be re-published without
// re-signing.
type Claims struct {
	jwt.RegisteredClaims
	Mesh Payload `json:"mesh"`
	Raw  string  `json:"-"`
}

// Subject is the public-key identity of the signed module.
func (c *Claims) Subject() string { return c.RegisteredClaims.Subject }

// IssuerID is the public-key identity of the signer.
func (c *Claims) IssuerID() string { return c.RegisteredClaims.Issuer }

// Sign issues a claim token for subject, signed by signer.
func Sign(signer *keys.KeyPair, subject string, p Payload) (string, error) {
	if signer == nil {
		return "", errors.New("claims: nil signer")
	}
	now := time.Now()
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       fmt.Sprintf("%s-%d", subject, now.UnixNano()),
			Issuer:   signer.PublicKeyID(),
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Mesh: p,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, c)
	return token.SignedString(signer.Private())
}

// Decode parses and verifies a claim token. The verification key is the
// ed25519 public key encoded in the token's own issuer field.
func Decode(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		c, ok := t.Claims.(*Claims)
		if !ok {
			return nil, errors.New("claims: unexpected claims type")
		}
		pub, err := keys.PublicKeyFromID(c.IssuerID())
		if err != nil {
			return nil, fmt.Errorf("claims: issuer is not a valid identity: %w", err)
		}
		return pub, nil
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("claims: invalid token")
	}
	c, ok := tok.Claims.(*Claims)
	if !ok {
		return nil, errors.New("claims: invalid claims type")
	}
	if c.Subject() == "" {
		return nil, errors.New("claims: missing subject")
	}
	c.Raw = tokenStr
	return c, nil
}

// InvocationClaims binds one invocation to its origin and target.
type InvocationClaims struct {
	jwt.RegisteredClaims
	Origin string `json:"origin"`
	Target string `json:"target"`
}

// SignInvocation mints a short-lived token for a single invocation.
func SignInvocation(signer *keys.KeyPair, invocationID, origin, target string) (string, error) {
	if signer == nil {
		return "", errors.New("claims: nil signer")
	}
	now := time.Now()
	c := InvocationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        invocationID,
			Issuer:    signer.PublicKeyID(),
			Subject:   invocationID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(30 * time.Second)),
		},
		Origin: origin,
		Target: target,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, c)
	return token.SignedString(signer.Private())
}

// VerifyInvocation validates an invocation token and checks it was minted
// for the given origin and target.
func VerifyInvocation(tokenStr, origin, target string) (*InvocationClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	tok, err := parser.ParseWithClaims(tokenStr, &InvocationClaims{}, func(t *jwt.Token) (any, error) {
		c, ok := t.Claims.(*InvocationClaims)
		if !ok {
			return nil, errors.New("claims: unexpected claims type")
		}
		pub, err := keys.PublicKeyFromID(c.Issuer)
		if err != nil {
			return nil, fmt.Errorf("claims: issuer is not a valid identity: %w", err)
		}
		return pub, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*InvocationClaims)
	if !ok || !tok.Valid {
		return nil, errors.New("claims: invalid invocation token")
	}
	if c.Origin != origin || c.Target != target {
		return nil, errors.New("claims: invocation token origin/target mismatch")
	}
	return c, nil
}
