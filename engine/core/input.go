package core

// Key code definitions
type KeyCode uint16

const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_SHIFT     KeyCode = 0x10
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28

	KEY_A KeyCode = 0x41
	KEY_B KeyCode = 0x42
	KEY_C KeyCode = 0x43
	KEY_D KeyCode = 0x44
	KEY_E KeyCode = 0x45
	KEY_F KeyCode = 0x46
	KEY_G KeyCode = 0x47
	KEY_H KeyCode = 0x48
	KEY_I KeyCode = 0x49
	KEY_J KeyCode = 0x4A
	KEY_K KeyCode = 0x4B
	KEY_L KeyCode = 0x4C
	KEY_M KeyCode = 0x4D
	KEY_N KeyCode = 0x4E
	KEY_O KeyCode = 0x4F
	KEY_P KeyCode = 0x50
	KEY_Q KeyCode = 0x51
	KEY_R KeyCode = 0x52
	KEY_S KeyCode = 0x53
	KEY_T KeyCode = 0x54
	KEY_U KeyCode = 0x55
	KEY_V KeyCode = 0x56
	KEY_W KeyCode = 0x57
	KEY_X KeyCode = 0x58
	KEY_Y KeyCode = 0x59
	KEY_Z KeyCode = 0x5A

	KEY_F1  KeyCode = 0x70
	KEY_F2  KeyCode = 0x71
	KEY_F3  KeyCode = 0x72
	KEY_F4  KeyCode = 0x73
	KEY_F5  KeyCode = 0x74
	KEY_F6  KeyCode = 0x75
	KEY_F7  KeyCode = 0x76
	KEY_F8  KeyCode = 0x77
	KEY_F9  KeyCode = 0x78
	KEY_F10 KeyCode = 0x79
	KEY_F11 KeyCode = 0x7A
	KEY_F12 KeyCode = 0x7B

	KEY_MAX_KEYS KeyCode = 0xFF
)

// Keyboard state structure
type KeyboardState struct {
	Keys [256]bool
}

// Input holds the current and previous keyboard state. Changes are fired on the bus as
// EVENT_CODE_KEY_PRESSED/RELEASED with the key code in Data.U16[0].
type Input struct {
	events   *EventBus
	current  KeyboardState
	previous KeyboardState
}

func NewInput(events *EventBus) *Input {
	return &Input{events: events}
}

// Update copies the current state to the previous one. Call it once at the end of a frame.
func (in *Input) Update() {
	in.previous = in.current
}

func (in *Input) IsKeyDown(key KeyCode) bool {
	return key < KEY_MAX_KEYS && in.current.Keys[key]
}

func (in *Input) IsKeyUp(key KeyCode) bool {
	return !in.IsKeyDown(key)
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	return key < KEY_MAX_KEYS && in.previous.Keys[key]
}

func (in *Input) WasKeyUp(key KeyCode) bool {
	return !in.WasKeyDown(key)
}

// ProcessKey records a key transition. Repeated reports of the same state are ignored.
func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEY_MAX_KEYS || in.current.Keys[key] == pressed {
		return
	}
	in.current.Keys[key] = pressed

	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	var ctx EventContext
	ctx.Data.U16[0] = uint16(key)
	in.events.Fire(code, in, ctx)
}
