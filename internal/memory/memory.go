// Package memory implements the CPU-visible address space of the NES: 2KB
// internal RAM, register windows onto the PPU/APU/input subsystems, and the
// cartridge PRG window. PPU-side memory (nametables, palette RAM, CHR) is
// owned directly by internal/ppu and is not reachable through this package.
package memory

// Memory represents the CPU's view of the NES address bus ($0000-$FFFF).
type Memory struct {
	ram [0x800]uint8

	ppuRegisters PPUInterface
	apuRegisters APUInterface
	inputSystem  InputInterface
	cartridge    CartridgeInterface

	dmaCallback func(uint8)

	openBusValue uint8
}

// PPUInterface is the register window the CPU reaches through $2000-$3FFF.
type PPUInterface interface {
	ReadRegister(address uint16) uint8
	WriteRegister(address uint16, value uint8)
}

// APUInterface is the register window the CPU reaches through $4000-$4017.
type APUInterface interface {
	WriteRegister(address uint16, value uint8)
	ReadStatus() uint8
}

// InputInterface is the register window the CPU reaches through $4016-$4017.
type InputInterface interface {
	Read(address uint16) uint8
	Write(address uint16, value uint8)
}

// CartridgeInterface is the PRG-space window the CPU reaches through
// $4020-$FFFF. CHR access belongs to the PPU's own Cartridge reference, not
// to this package.
type CartridgeInterface interface {
	ReadPRG(address uint16) uint8
	WritePRG(address uint16, value uint8)
}

// New creates a Memory wired to the given component register windows. cart
// may be nil until a cartridge is loaded. The open-bus latch starts at 0xFF.
func New(ppu PPUInterface, apu APUInterface, cart CartridgeInterface) *Memory {
	return &Memory{
		ppuRegisters: ppu,
		apuRegisters: apu,
		cartridge:    cart,
		openBusValue: 0xFF,
	}
}

// SetInputSystem attaches the controller register window.
func (m *Memory) SetInputSystem(input InputInterface) {
	m.inputSystem = input
}

// SetCartridge replaces the PRG-space cartridge window, e.g. after loading
// a ROM into a Memory constructed before the cartridge existed.
func (m *Memory) SetCartridge(cart CartridgeInterface) {
	m.cartridge = cart
}

// SetDMACallback installs the handler for $4014 OAM DMA writes. Without one,
// Write performs the 256-byte copy immediately and synchronously.
func (m *Memory) SetDMACallback(callback func(uint8)) {
	m.dmaCallback = callback
}

// Read reads a byte from the CPU address space, per the decode table:
// $0000-$1FFF RAM (mirrored every $800), $2000-$3FFF PPU registers (mirrored
// every 8 bytes), $4000-$4017 APU/controller, $4018-$401F open bus,
// $4020-$FFFF cartridge space (decoded by the mapper).
func (m *Memory) Read(address uint16) uint8 {
	var value uint8

	switch {
	case address < 0x2000:
		value = m.ram[address&0x07FF]

	case address < 0x4000:
		value = m.ppuRegisters.ReadRegister(0x2000 + (address & 0x0007))

	case address < 0x4020:
		switch {
		case address == 0x4015:
			value = m.apuRegisters.ReadStatus()
		case address == 0x4016 || address == 0x4017:
			if m.inputSystem != nil {
				value = m.inputSystem.Read(address)
			}
		default:
			value = m.openBusValue
		}

	default:
		// $4020-$FFFF: cartridge space; the mapper decides what answers.
		if m.cartridge != nil {
			value = m.cartridge.ReadPRG(address)
		} else {
			value = m.openBusValue
		}
	}

	m.openBusValue = value
	return value
}

// Write writes a byte to the CPU address space.
func (m *Memory) Write(address uint16, value uint8) {
	switch {
	case address < 0x2000:
		m.ram[address&0x07FF] = value

	case address < 0x4000:
		m.ppuRegisters.WriteRegister(0x2000+(address&0x0007), value)

	case address < 0x4020:
		switch {
		case address == 0x4014:
			if m.dmaCallback != nil {
				m.dmaCallback(value)
			} else {
				m.performOAMDMA(value)
			}
		case address == 0x4016:
			if m.inputSystem != nil {
				m.inputSystem.Write(address, value)
			}
		case address <= 0x4013, address == 0x4015, address == 0x4017:
			m.apuRegisters.WriteRegister(address, value)
		}
		// $4018-$401F: APU/IO test-mode registers, ignored.

	default:
		// $4020-$FFFF: cartridge space; the mapper decides what is written.
		if m.cartridge != nil {
			m.cartridge.WritePRG(address, value)
		}
	}
}

// RAM returns the 2 KiB internal RAM array for save-state capture.
func (m *Memory) RAM() *[0x800]uint8 { return &m.ram }

// RestoreRAM overwrites internal RAM from a previously captured snapshot.
func (m *Memory) RestoreRAM(ram [0x800]uint8) { m.ram = ram }

// performOAMDMA is the synchronous fallback used when no DMA callback is
// installed; it does not model the 513/514-cycle CPU stall the Bus's
// callback path accounts for.
func (m *Memory) performOAMDMA(page uint8) {
	baseAddress := uint16(page) << 8
	for i := uint16(0); i < 256; i++ {
		value := m.Read(baseAddress + i)
		m.ppuRegisters.WriteRegister(0x2004, value)
	}
}
