package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewInProcess()
	ch, cancel := b.Subscribe("mesh.events")
	defer cancel()

	b.Publish("mesh.events", []byte(`{"type":"component_started"}`))

	select {
	case msg := <-ch:
		assert.Equal(t, "mesh.events", msg.Subject)
		assert.Contains(t, string(msg.Data), "component_started")
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestRetainedMessageForLateSubscriber(t *testing.T) {
	b := NewInProcess()
	b.Publish(SubjectCacheReady, []byte("Pcache"))

	ch, cancel := b.Subscribe(SubjectCacheReady)
	defer cancel()

	select {
	case msg := <-ch:
		assert.Equal(t, []byte("Pcache"), msg.Data)
	case <-time.After(time.Second):
		t.Fatal("retained message not delivered")
	}
}

func TestUnsubscribeClosesAndClears(t *testing.T) {
	b := NewInProcess()
	subject := ComponentSubject("Cabc")
	ch, _ := b.Subscribe(subject)
	b.Publish(subject, []byte("x"))
	<-ch

	b.Unsubscribe(subject)
	_, open := <-ch
	assert.False(t, open)

	// Retained state is gone; a new subscriber sees nothing.
	ch2, cancel := b.Subscribe(subject)
	defer cancel()
	select {
	case m, ok := <-ch2:
		if ok {
			t.Fatalf("unexpected message after unsubscribe: %q", m.Data)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelIsIdempotentWithUnsubscribe(t *testing.T) {
	b := NewInProcess()
	_, cancel := b.Subscribe("s")
	b.Unsubscribe("s")
	require.NotPanics(t, cancel)
}

func TestSubjectBuilders(t *testing.T) {
	assert.Equal(t, "mesh.comp.Cabc", ComponentSubject("Cabc"))
	assert.Equal(t, "mesh.prov.Pabc.default", ProviderSubject("Pabc", "default"))
}
