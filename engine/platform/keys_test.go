package platform

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/stretchr/testify/assert"
)

func TestTranslateKey(t *testing.T) {
	cases := map[glfw.Key]core.KeyCode{
		glfw.KeyA:          core.KEY_A,
		glfw.KeyW:          core.KEY_W,
		glfw.KeyZ:          core.KEY_Z,
		glfw.KeyF5:         core.KEY_F5,
		glfw.KeyEscape:     core.KEY_ESCAPE,
		glfw.KeyRightShift: core.KEY_SHIFT,
	}
	for key, want := range cases {
		got, ok := translateKey(key)
		assert.True(t, ok, "key %d", key)
		assert.Equal(t, want, got, "key %d", key)
	}

	_, ok := translateKey(glfw.KeyKPAdd)
	assert.False(t, ok)
}
