package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBusFireStopsAtFirstHandler(t *testing.T) {
	bus := NewEventBus()
	var calls []string

	first, second := "first", "second"
	assert.True(t, bus.Register(EVENT_CODE_RESIZED, first, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, listener.(string))
		return true
	}))
	assert.True(t, bus.Register(EVENT_CODE_RESIZED, second, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, listener.(string))
		return false
	}))

	ctx := EventContext{}
	ctx.Data.U32[0] = 800
	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, []string{"first"}, calls)
}

func TestEventBusRejectsDuplicateListener(t *testing.T) {
	bus := NewEventBus()
	noop := func(SystemEventCode, interface{}, interface{}, EventContext) bool { return false }

	assert.True(t, bus.Register(EVENT_CODE_APPLICATION_QUIT, "l", noop))
	assert.False(t, bus.Register(EVENT_CODE_APPLICATION_QUIT, "l", noop))
	assert.True(t, bus.Unregister(EVENT_CODE_APPLICATION_QUIT, "l"))
	assert.False(t, bus.Unregister(EVENT_CODE_APPLICATION_QUIT, "l"))
	assert.False(t, bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
}
