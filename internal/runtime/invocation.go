package runtime

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/meshkit/meshhost/internal/claims"
	"github.com/meshkit/meshhost/internal/keys"
)

// Invocation is the envelope crossing the host/module boundary. Builtin
// and sandboxed targets share this one cbor encoding.
type Invocation struct {
	ID            string `cbor:"id"`
	Origin        string `cbor:"origin"`
	Target        string `cbor:"target"`
	Operation     string `cbor:"operation"`
	Msg           []byte `cbor:"msg"`
	EncodedClaims string `cbor:"claims"`
}

// NewInvocation builds a signed invocation from origin to target.
func NewInvocation(signer *keys.KeyPair, origin, target, operation string, msg []byte) (Invocation, error) {
	id := uuid.NewString()
	tok, err := claims.SignInvocation(signer, id, origin, target)
	if err != nil {
		return Invocation{}, fmt.Errorf("runtime: sign invocation: %w", err)
	}
	return Invocation{
		ID:            id,
		Origin:        origin,
		Target:        target,
		Operation:     operation,
		Msg:           msg,
		EncodedClaims: tok,
	}, nil
}

// Validate verifies the embedded invocation token against the envelope's
// own origin and target.
func (i Invocation) Validate() error {
	if _, err := claims.VerifyInvocation(i.EncodedClaims, i.Origin, i.Target); err != nil {
		return fmt.Errorf("runtime: invocation %s: %w", i.ID, err)
	}
	return nil
}

// Encode serializes the invocation for transport.
func (i Invocation) Encode() ([]byte, error) {
	return cbor.Marshal(i)
}

// DecodeInvocation deserializes a transported invocation.
func DecodeInvocation(data []byte) (Invocation, error) {
	var inv Invocation
	if err := cbor.Unmarshal(data, &inv); err != nil {
		return Invocation{}, fmt.Errorf("runtime: decode invocation: %w", err)
	}
	return inv, nil
}
