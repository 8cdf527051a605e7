package platform

import (
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/umbra/engine/core"
)

var keyMap = map[glfw.Key]core.KeyCode{
	glfw.KeyBackspace:  core.KEY_BACKSPACE,
	glfw.KeyTab:        core.KEY_TAB,
	glfw.KeyEnter:      core.KEY_ENTER,
	glfw.KeyLeftShift:  core.KEY_SHIFT,
	glfw.KeyRightShift: core.KEY_SHIFT,
	glfw.KeyEscape:     core.KEY_ESCAPE,
	glfw.KeySpace:      core.KEY_SPACE,
	glfw.KeyLeft:       core.KEY_LEFT,
	glfw.KeyUp:         core.KEY_UP,
	glfw.KeyRight:      core.KEY_RIGHT,
	glfw.KeyDown:       core.KEY_DOWN,
}

// translateKey maps a glfw key to the engine key code. Letters and function keys are
// contiguous in both tables.
func translateKey(key glfw.Key) (core.KeyCode, bool) {
	switch {
	case key >= glfw.KeyA && key <= glfw.KeyZ:
		return core.KEY_A + core.KeyCode(key-glfw.KeyA), true
	case key >= glfw.KeyF1 && key <= glfw.KeyF12:
		return core.KEY_F1 + core.KeyCode(key-glfw.KeyF1), true
	}
	code, ok := keyMap[key]
	return code, ok
}
