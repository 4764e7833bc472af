// Package nes wires the CPU, PPU, APU, and cartridge together into the
// single owning aggregate the rest of the system (internal/app, cmd/gones,
// internal/savestate) drives.
package nes

import (
	"fmt"

	"github.com/gones/gones/internal/bus"
	"github.com/gones/gones/internal/cartridge"
)

// CyclesPerFrame is the nominal NTSC CPU cycle budget for one frame
// (29780.5, truncated); callers that need exact frame boundaries should
// drive Nes via RunFrame, which stops at the PPU's own frame counter
// rather than a fixed cycle count.
const CyclesPerFrame = 29780

// Nes is the owning aggregate: it holds the Bus (and, through it, the CPU,
// PPU, APU, Memory and Input) plus the loaded Cartridge, and is the single
// object internal/savestate snapshots and restores.
type Nes struct {
	Bus *bus.Bus

	cartridge *cartridge.Cartridge
	romPath   string
}

// New creates a Nes with no cartridge loaded. Step/RunFrame do nothing
// useful until LoadROM succeeds.
func New() *Nes {
	return &Nes{Bus: bus.New()}
}

// LoadROM reads an iNES file from path and inserts it, resetting the system
// so the CPU starts from the cartridge's reset vector. A previously loaded
// cartridge is discarded.
func (n *Nes) LoadROM(path string) error {
	cart, err := cartridge.Load(path)
	if err != nil {
		return fmt.Errorf("nes: load ROM %s: %w", path, err)
	}
	n.cartridge = cart
	n.romPath = path
	n.Bus.LoadCartridge(cart)
	return nil
}

// Reset restores every component to its power-on state without reloading
// the cartridge.
func (n *Nes) Reset() {
	n.Bus.Reset()
}

// RunFrame advances emulation until the PPU completes one more frame than
// it had when RunFrame was called.
func (n *Nes) RunFrame() {
	target := n.Bus.GetFrameCount() + 1
	for n.Bus.GetFrameCount() < target {
		n.Bus.Step()
	}
}

// Step executes a single CPU instruction (plus any DMA stall/interrupt
// servicing ahead of it) and catches PPU/APU up to match, returning the
// number of CPU cycles consumed.
func (n *Nes) Step() uint64 {
	return n.Bus.Step()
}

// FrameBuffer returns the current 256x240 ARGB framebuffer.
func (n *Nes) FrameBuffer() *[256 * 240]uint32 {
	return n.Bus.GetFrameBuffer()
}

// DrainAudio copies up to len(dst) pending audio samples into dst and
// returns the number copied.
func (n *Nes) DrainAudio(dst []float32) int {
	return n.Bus.DrainAudio(dst)
}

// SetControllerButtons sets all eight button states for a controller (1 or
// 2).
func (n *Nes) SetControllerButtons(controller int, buttons [8]bool) {
	n.Bus.SetControllerButtons(controller, buttons)
}

// Cartridge returns the currently loaded cartridge, or nil if none has been
// loaded.
func (n *Nes) Cartridge() *cartridge.Cartridge {
	return n.cartridge
}

// ROMPath returns the filesystem path of the currently loaded ROM, or "" if
// none has been loaded.
func (n *Nes) ROMPath() string {
	return n.romPath
}

// FrameCount returns the number of frames the PPU has completed.
func (n *Nes) FrameCount() uint64 {
	return n.Bus.GetFrameCount()
}

// CycleCount returns the total CPU cycle count since the last Reset.
func (n *Nes) CycleCount() uint64 {
	return n.Bus.GetCycleCount()
}
