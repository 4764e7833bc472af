package cartridge

import "bytes"

// LoadFromBytes constructs a Cartridge from an in-memory iNES image; a thin
// convenience wrapper over LoadFromReader for tests that build ROM images
// programmatically.
func LoadFromBytes(data []byte) (*Cartridge, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// MockCartridge is a test double satisfying the same read/write surface as
// Cartridge, with access logs for assertions. It never fails to construct
// and never allocates real ROM data, so it's used by CPU/PPU/Bus unit tests
// that need a cartridge-shaped collaborator without a real ROM image.
type MockCartridge struct {
	prgROM [0x8000]uint8
	chrROM [0x2000]uint8
	prgRAM [0x2000]uint8
	chrRAM [0x2000]uint8

	mirroring MirrorMode

	prgReads  []uint16
	prgWrites []uint16
	chrReads  []uint16
	chrWrites []uint16

	irqPending bool
}

// NewMockCartridge creates a mock cartridge for unit tests.
func NewMockCartridge() *MockCartridge {
	return &MockCartridge{mirroring: MirrorHorizontal}
}

func (c *MockCartridge) ReadPRG(address uint16) uint8 {
	c.prgReads = append(c.prgReads, address)
	switch {
	case address >= 0x8000:
		index := address - 0x8000
		if len(c.prgROM) == 0x4000 {
			index %= 0x4000
		}
		return c.prgROM[index]
	case address >= 0x6000:
		return c.prgRAM[address-0x6000]
	default:
		return 0
	}
}

func (c *MockCartridge) WritePRG(address uint16, value uint8) {
	c.prgWrites = append(c.prgWrites, address)
	if address >= 0x6000 && address < 0x8000 {
		c.prgRAM[address-0x6000] = value
	}
}

func (c *MockCartridge) ReadCHR(address uint16) uint8 {
	c.chrReads = append(c.chrReads, address)
	if address < 0x2000 {
		return c.chrROM[address]
	}
	return 0
}

func (c *MockCartridge) WriteCHR(address uint16, value uint8) {
	c.chrWrites = append(c.chrWrites, address)
	if address < 0x2000 {
		c.chrRAM[address] = value
	}
}

func (c *MockCartridge) NotifyA12(address uint16, ppuCycle uint64) {}
func (c *MockCartridge) IRQPending() bool                          { return c.irqPending }
func (c *MockCartridge) ClearIRQ()                                  { c.irqPending = false }
func (c *MockCartridge) Reset()                                     {}

// SetIRQPending lets a test force the mock's IRQ line for Bus-level tests.
func (c *MockCartridge) SetIRQPending(v bool) { c.irqPending = v }

func (c *MockCartridge) LoadPRG(data []uint8) { copy(c.prgROM[:], data) }
func (c *MockCartridge) LoadCHR(data []uint8) { copy(c.chrROM[:], data) }

func (c *MockCartridge) SetMirroring(mode MirrorMode) { c.mirroring = mode }
func (c *MockCartridge) MirrorMode() MirrorMode        { return c.mirroring }

func (c *MockCartridge) ClearLogs() {
	c.prgReads = c.prgReads[:0]
	c.prgWrites = c.prgWrites[:0]
	c.chrReads = c.chrReads[:0]
	c.chrWrites = c.chrWrites[:0]
}
