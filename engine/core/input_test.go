package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputFiresOnTransitionsOnly(t *testing.T) {
	bus := NewEventBus()
	in := NewInput(bus)

	var pressed, released []KeyCode
	listener := &struct{}{}
	bus.Register(EVENT_CODE_KEY_PRESSED, listener, func(_ SystemEventCode, _ interface{}, _ interface{}, data EventContext) bool {
		pressed = append(pressed, KeyCode(data.Data.U16[0]))
		return false
	})
	bus.Register(EVENT_CODE_KEY_RELEASED, listener, func(_ SystemEventCode, _ interface{}, _ interface{}, data EventContext) bool {
		released = append(released, KeyCode(data.Data.U16[0]))
		return false
	})

	in.ProcessKey(KEY_W, true)
	in.ProcessKey(KEY_W, true)
	in.ProcessKey(KEY_W, false)

	assert.Equal(t, []KeyCode{KEY_W}, pressed)
	assert.Equal(t, []KeyCode{KEY_W}, released)
}

func TestInputPreviousState(t *testing.T) {
	in := NewInput(NewEventBus())

	in.ProcessKey(KEY_SPACE, true)
	assert.True(t, in.IsKeyDown(KEY_SPACE))
	assert.True(t, in.WasKeyUp(KEY_SPACE))

	in.Update()
	in.ProcessKey(KEY_SPACE, false)
	assert.True(t, in.IsKeyUp(KEY_SPACE))
	assert.True(t, in.WasKeyDown(KEY_SPACE))

	assert.False(t, in.IsKeyDown(KEY_MAX_KEYS))
}
