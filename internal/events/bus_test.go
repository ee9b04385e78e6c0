package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentdb-backend/internal/domain/shared"
)

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	b := NewBus(nil)

	var order []string
	b.Subscribe(func(shared.ChangeEvent) { order = append(order, "first") })
	b.Subscribe(func(shared.ChangeEvent) { order = append(order, "second") })
	b.Subscribe(func(shared.ChangeEvent) { order = append(order, "third") })

	b.Publish(shared.NewChangeEvent(shared.ChangeNodeAdd, "A.FN.001", 1))

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus(nil)

	var got int
	unsubscribe := b.Subscribe(func(shared.ChangeEvent) { got++ })
	require.Equal(t, 1, b.SubscriberCount())

	b.Publish(shared.NewChangeEvent(shared.ChangeNodeAdd, "A.FN.001", 1))
	unsubscribe()
	b.Publish(shared.NewChangeEvent(shared.ChangeNodeUpdate, "A.FN.001", 2))

	assert.Equal(t, 1, got)
	assert.Zero(t, b.SubscriberCount())

	// Calling the unsubscribe func again is harmless.
	unsubscribe()
}

func TestBus_PanickingHandlerDoesNotBlockOthers(t *testing.T) {
	b := NewBus(nil)

	var delivered bool
	b.Subscribe(func(shared.ChangeEvent) { panic("bad consumer") })
	b.Subscribe(func(shared.ChangeEvent) { delivered = true })

	assert.NotPanics(t, func() {
		b.Publish(shared.NewChangeEvent(shared.ChangeNodeDelete, "A.FN.001", 3))
	})
	assert.True(t, delivered)
}

func TestBus_EventCarriesPayload(t *testing.T) {
	b := NewBus(nil)

	var got shared.ChangeEvent
	b.Subscribe(func(ev shared.ChangeEvent) { got = ev })

	sent := shared.NewChangeEvent(shared.ChangeEdgeAdd, "edge-uuid", 9)
	b.Publish(sent)

	assert.Equal(t, sent.EventID, got.EventID)
	assert.Equal(t, shared.ChangeEdgeAdd, got.Type)
	assert.Equal(t, "edge-uuid", got.ID)
	assert.Equal(t, int64(9), got.Version)
	assert.False(t, got.OccurredAt.IsZero())
}
