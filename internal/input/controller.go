// Package input implements controller handling for the NES.
package input

import (
	"log"
)

// Button represents NES controller buttons
type Button uint8

const (
	ButtonA Button = 1 << iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
)

// Convenience constants for shorter names used by callers binding keys.
const (
	A      = ButtonA
	B      = ButtonB
	Select = ButtonSelect
	Start  = ButtonStart
	Up     = ButtonUp
	Down   = ButtonDown
	Left   = ButtonLeft
	Right  = ButtonRight
)

// Controller emulates one standard NES controller: an 8-button latch read
// back one bit per $4016/$4017 access while strobe is low.
type Controller struct {
	buttons uint8

	shiftRegister uint8
	strobe        bool

	buttonSnapshot uint8
	bitPosition    uint8

	readCount    uint64
	writeCount   uint64
	debugEnabled bool
}

// New creates a new Controller instance
func New() *Controller {
	return &Controller{}
}

// SetButton sets the state of a single button.
func (c *Controller) SetButton(button Button, pressed bool) {
	before := c.buttons
	if pressed {
		c.buttons |= uint8(button)
	} else {
		c.buttons &^= uint8(button)
	}
	if c.debugEnabled && before != c.buttons {
		log.Printf("controller: button=%d pressed=%t buttons=0x%02X", uint8(button), pressed, c.buttons)
	}
}

// SetButtons sets all eight button states at once, in A, B, Select, Start,
// Up, Down, Left, Right order.
func (c *Controller) SetButtons(buttons [8]bool) {
	c.buttons = 0
	bits := [8]Button{ButtonA, ButtonB, ButtonSelect, ButtonStart, ButtonUp, ButtonDown, ButtonLeft, ButtonRight}
	for i, pressed := range buttons {
		if pressed {
			c.buttons |= uint8(bits[i])
		}
	}
}

// IsPressed returns true if the button is currently pressed
func (c *Controller) IsPressed(button Button) bool {
	return (c.buttons & uint8(button)) != 0
}

// Write handles a write to the controller's strobe latch. Falling edge
// (1->0) captures the button snapshot that Read then shifts out one bit at
// a time; while strobe stays high, every Read re-captures bit 0 (button A).
func (c *Controller) Write(value uint8) {
	c.writeCount++
	wasStrobe := c.strobe
	c.strobe = (value & 1) != 0

	if c.strobe {
		c.buttonSnapshot = c.buttons
		c.shiftRegister = c.buttons
		c.bitPosition = 0
	} else if wasStrobe {
		c.buttonSnapshot = c.buttons
		c.shiftRegister = c.buttonSnapshot
		c.bitPosition = 0
	}
}

// Read handles a read from the controller register. Bit 0 carries the
// button bit and bit 6 is always set (open bus).
func (c *Controller) Read() uint8 {
	c.readCount++

	if c.strobe {
		c.bitPosition = 0
		return (c.buttons & 1) | 0x40
	}

	if c.bitPosition >= 8 {
		c.bitPosition++
		return 0x41
	}

	result := (c.shiftRegister & 1) | 0x40
	c.shiftRegister >>= 1
	c.bitPosition++
	return result
}

// Reset resets the controller to its power-on state.
func (c *Controller) Reset() {
	c.buttons = 0
	c.shiftRegister = 0
	c.strobe = false
	c.buttonSnapshot = 0
	c.bitPosition = 0
	c.readCount = 0
	c.writeCount = 0
}

// EnableDebug enables per-write/per-button stdlib log output, gated by the
// application's Config.Debug setting.
func (c *Controller) EnableDebug(enable bool) {
	c.debugEnabled = enable
}

// GetBitPosition returns the current shift position, used by tests.
func (c *Controller) GetBitPosition() uint8 {
	return c.bitPosition
}

// Snapshot is the serializable latch state of one Controller, used by
// internal/savestate.
type Snapshot struct {
	Buttons        uint8
	ShiftRegister  uint8
	Strobe         bool
	ButtonSnapshot uint8
	BitPosition    uint8
}

// Snapshot captures the controller's latch state for save-state
// serialization. Button presses themselves are live input, not emulation
// state, but the mid-read shift register must survive a save/load cycle.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Buttons: c.buttons, ShiftRegister: c.shiftRegister, Strobe: c.strobe,
		ButtonSnapshot: c.buttonSnapshot, BitPosition: c.bitPosition,
	}
}

// Restore applies a previously captured Snapshot.
func (c *Controller) Restore(s Snapshot) {
	c.buttons, c.shiftRegister, c.strobe = s.Buttons, s.ShiftRegister, s.Strobe
	c.buttonSnapshot, c.bitPosition = s.ButtonSnapshot, s.BitPosition
}

// InputState owns the two controller ports the NES exposes at $4016/$4017.
type InputState struct {
	Controller1 *Controller
	Controller2 *Controller
}

// NewInputState creates a new input state with two controllers
func NewInputState() *InputState {
	return &InputState{
		Controller1: New(),
		Controller2: New(),
	}
}

// Reset resets all input devices
func (is *InputState) Reset() {
	is.Controller1.Reset()
	is.Controller2.Reset()
}

// EnableDebug enables debug logging for all controllers
func (is *InputState) EnableDebug(enable bool) {
	is.Controller1.EnableDebug(enable)
	is.Controller2.EnableDebug(enable)
}

// SetButtons1 sets all button states for controller 1.
func (is *InputState) SetButtons1(buttons [8]bool) {
	is.Controller1.SetButtons(buttons)
}

// SetButtons2 sets all button states for controller 2.
func (is *InputState) SetButtons2(buttons [8]bool) {
	is.Controller2.SetButtons(buttons)
}

// Read reads from controller ports $4016/$4017. Both ports return bit 6
// set, matching NES open-bus behavior on these ports.
func (is *InputState) Read(address uint16) uint8 {
	switch address {
	case 0x4016:
		return is.Controller1.Read()
	case 0x4017:
		return is.Controller2.Read() | 0x40
	default:
		return 0
	}
}

// Write writes to the controller strobe latch; both controllers receive
// every $4016 write.
func (is *InputState) Write(address uint16, value uint8) {
	if address == 0x4016 {
		is.Controller1.Write(value)
		is.Controller2.Write(value)
	}
}

// Snapshot is the serializable latch state of both controller ports, used
// by internal/savestate.
type InputSnapshot struct {
	Controller1 Snapshot
	Controller2 Snapshot
}

// Snapshot captures both controllers' latch state.
func (is *InputState) Snapshot() InputSnapshot {
	return InputSnapshot{
		Controller1: is.Controller1.Snapshot(),
		Controller2: is.Controller2.Snapshot(),
	}
}

// Restore applies a previously captured InputSnapshot.
func (is *InputState) Restore(s InputSnapshot) {
	is.Controller1.Restore(s.Controller1)
	is.Controller2.Restore(s.Controller2)
}
