// Package events publishes host lifecycle events onto the bus.
// Publication is fire and forget: consumers that care subscribe to the
// events subject, and a failed publish never fails the operation that
// produced it.
package events

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/meshkit/meshhost/internal/bus"
)

type Type string

const (
	HostStarted      Type = "host_started"
	ComponentStarted Type = "component_started"
	ComponentStopped Type = "component_stopped"
	ProviderStarted  Type = "provider_started"
	CacheReady       Type = "cache_ready"
)

type Event struct {
	Type      Type      `json:"type"`
	HostID    string    `json:"host_id"`
	Identity  string    `json:"identity,omitempty"`
	LinkName  string    `json:"link_name,omitempty"`
	Reference string    `json:"reference,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher struct {
	bus    bus.Bus
	hostID string
	log    *zap.Logger
}

func NewPublisher(b bus.Bus, hostID string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{bus: b, hostID: hostID, log: log}
}

// Publish stamps and emits one event.
func (p *Publisher) Publish(evt Event) {
	evt.HostID = p.hostID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		p.log.Warn("dropping unmarshalable lifecycle event", zap.String("type", string(evt.Type)), zap.Error(err))
		return
	}
	p.bus.Publish(bus.SubjectEvents, data)
}
