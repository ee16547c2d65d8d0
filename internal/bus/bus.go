// Package bus abstracts the message-routing fabric. The controller only
// needs to publish, subscribe, and withdraw routing interest; real
// deployments inject their own fabric, tests and single-node setups use
// the in-process implementation.
package bus

import "sync"

// Message is one published payload.
type Message struct {
	Subject string
	Data    []byte
}

// Bus is the routing fabric contract consumed by the controller.
type Bus interface {
	// Publish delivers data to current subscribers and retains it for
	// late ones. Fire and forget.
	Publish(subject string, data []byte)
	// Subscribe registers interest in a subject. The returned cancel
	// must be called to release the subscription.
	Subscribe(subject string) (<-chan Message, func())
	// Unsubscribe withdraws all routing interest in a subject.
	Unsubscribe(subject string)
}

// Subject builders for the controller's routing interests.
const (
	SubjectEvents     = "mesh.events"
	SubjectCacheReady = "mesh.cache"
)

func ComponentSubject(identity string) string {
	return "mesh.comp." + identity
}

func ProviderSubject(identity, linkName string) string {
	return "mesh.prov." + identity + "." + linkName
}

func CapabilitySubject(contractID, linkName string) string {
	return "mesh.cap." + contractID + "." + linkName
}

// InProcess is a single-node Bus. Each subject retains its last message
// so late subscribers still observe it.
type InProcess struct {
	mu       sync.Mutex
	retained map[string][]byte
	subs     map[string]map[chan Message]struct{}
}

func NewInProcess() *InProcess {
	return &InProcess{
		retained: make(map[string][]byte),
		subs:     make(map[string]map[chan Message]struct{}),
	}
}

func (b *InProcess) Publish(subject string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retained[subject] = data
	for ch := range b.subs[subject] {
		select {
		case ch <- Message{Subject: subject, Data: data}:
		default:
			// drop if subscriber is slow; retained still holds it
		}
	}
}

func (b *InProcess) Subscribe(subject string) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Message, 8)
	if b.subs[subject] == nil {
		b.subs[subject] = make(map[chan Message]struct{})
	}
	b.subs[subject][ch] = struct{}{}
	if data, ok := b.retained[subject]; ok {
		ch <- Message{Subject: subject, Data: data}
	}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs := b.subs[subject]; subs != nil {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(b.subs, subject)
			}
		}
	}
}

func (b *InProcess) Unsubscribe(subject string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.retained, subject)
	for ch := range b.subs[subject] {
		close(ch)
	}
	delete(b.subs, subject)
}
