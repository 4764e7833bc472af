package ppu

import "github.com/gones/gones/internal/cartridge"

// mockCartridge is a minimal Cartridge double for PPU tests: flat CHR-RAM,
// a fixed mirror mode, and an A12-notification counter so tests can assert
// the PPU actually reports VRAM accesses.
type mockCartridge struct {
	chr         [0x2000]uint8
	mirror      cartridge.MirrorMode
	a12Notifies int
	lastA12Addr uint16
}

func newMockCartridge(mirror cartridge.MirrorMode) *mockCartridge {
	return &mockCartridge{mirror: mirror}
}

func (m *mockCartridge) ReadCHR(address uint16) uint8         { return m.chr[address&0x1FFF] }
func (m *mockCartridge) WriteCHR(address uint16, value uint8) { m.chr[address&0x1FFF] = value }
func (m *mockCartridge) MirrorMode() cartridge.MirrorMode     { return m.mirror }
func (m *mockCartridge) NotifyA12(address uint16, ppuCycle uint64) {
	m.a12Notifies++
	m.lastA12Addr = address
}

// runDots advances the PPU n dots.
func runDots(p *PPU, n int) {
	for i := 0; i < n; i++ {
		p.Tick()
	}
}

// runToScanlineDot advances the PPU until it reaches the given scanline and
// dot, assuming it starts at or before that point in the same frame.
func runToScanlineDot(p *PPU, scanline, dot int) {
	for !(p.scanline == scanline && p.dot == dot) {
		p.Tick()
	}
}
