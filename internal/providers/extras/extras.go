// Package extras is the builtin low-risk utility provider started during
// bootstrap: guids, random numbers, a monotonic sequence, and host
// uptime. It has no external dependencies and no configuration.
package extras

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/meshkit/meshhost/internal/runtime"
)

// ModuleName is the payload string the builtin provider host resolves to
// this implementation.
const ModuleName = "extras"

// Contract served by this provider.
const Contract = "mesh:extras"

// LinkName is the fixed internal link name the bootstrap starts this
// provider under.
const LinkName = "__extras"

const (
	OpRequestGuid     = "RequestGuid"
	OpRequestRandom   = "RequestRandom"
	OpRequestSequence = "RequestSequence"
	OpRequestUptime   = "RequestUptime"
)

type RandomRequest struct {
	Min uint32 `cbor:"min"`
	Max uint32 `cbor:"max"`
}

type RandomResponse struct {
	Value uint32 `cbor:"value"`
}

type GuidResponse struct {
	Guid string `cbor:"guid"`
}

type SequenceResponse struct {
	Value uint64 `cbor:"value"`
}

type UptimeResponse struct {
	Millis int64 `cbor:"millis"`
}

// Provider implements the extras contract.
type Provider struct {
	startedAt time.Time
	seq       atomic.Uint64
}

func New() *Provider {
	return &Provider{startedAt: time.Now()}
}

func (p *Provider) Contract() string { return Contract }

func (p *Provider) HandleInvocation(ctx context.Context, operation string, msg []byte) ([]byte, error) {
	switch operation {
	case runtime.OpBindComponent:
		// Nothing to configure; binds are accepted and ignored.
		return nil, nil
	case OpRequestGuid:
		return cbor.Marshal(GuidResponse{Guid: uuid.NewString()})
	case OpRequestRandom:
		var req RandomRequest
		if err := cbor.Unmarshal(msg, &req); err != nil {
			return nil, fmt.Errorf("extras: decode random request: %w", err)
		}
		return cbor.Marshal(RandomResponse{Value: randomInRange(req.Min, req.Max)})
	case OpRequestSequence:
		return cbor.Marshal(SequenceResponse{Value: p.seq.Add(1)})
	case OpRequestUptime:
		return cbor.Marshal(UptimeResponse{Millis: time.Since(p.startedAt).Milliseconds()})
	default:
		return nil, fmt.Errorf("extras: unsupported operation %q", operation)
	}
}

func randomInRange(min, max uint32) uint32 {
	if max <= min {
		return min
	}
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	n := binary.BigEndian.Uint32(buf[:])
	span := max - min
	if span == ^uint32(0) {
		return n
	}
	return min + n%(span+1)
}
