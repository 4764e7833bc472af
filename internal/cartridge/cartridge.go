// Package cartridge implements iNES ROM loading and the mapper abstraction
// that translates CPU/PPU addresses into cartridge PRG/CHR storage.
package cartridge

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Cartridge owns PRG-ROM, CHR-ROM (or CHR-RAM), PRG-RAM and the mapper
// instance responsible for bank switching and IRQ generation.
type Cartridge struct {
	prgROM []uint8
	chrROM []uint8

	mapperID uint8
	mapper   Mapper

	mirror MirrorMode

	hasBattery bool
	sram       [0x2000]uint8

	hasCHRRAM bool
}

// MirrorMode represents nametable mirroring mode.
type MirrorMode uint8

const (
	MirrorHorizontal MirrorMode = iota
	MirrorVertical
	MirrorSingleScreen0
	MirrorSingleScreen1
	MirrorFourScreen
)

// Mapper is the polymorphic cartridge-translation contract shared by every
// supported mapper variant (§4.5). a12_latch/irq_pending/irq_clear only
// matter to mappers that generate scanline interrupts (MMC3); NROM's
// implementations are no-ops.
type Mapper interface {
	ReadPRG(address uint16) uint8
	WritePRG(address uint16, value uint8)
	ReadCHR(address uint16) uint8
	WriteCHR(address uint16, value uint8)

	// NotifyA12 is called on every PPU VRAM access with the address and
	// the PPU's running dot counter, so the mapper can filter A12 edges.
	NotifyA12(address uint16, ppuCycle uint64)
	IRQPending() bool
	ClearIRQ()
	Reset()
}

// iNESHeader is the 16-byte iNES file header.
type iNESHeader struct {
	Magic      [4]uint8
	PRGROMSize uint8 // in 16KiB units
	CHRROMSize uint8 // in 8KiB units
	Flags6     uint8
	Flags7     uint8
	PRGRAMSize uint8
	TVSystem1  uint8
	TVSystem2  uint8
	Padding    [5]uint8
}

// Load reads an iNES ROM image from filename and constructs a Cartridge.
func Load(filename string) (*Cartridge, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("cartridge: open %s: %w", filename, err)
	}
	defer file.Close()

	cart, err := LoadFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("cartridge: load %s: %w", filename, err)
	}
	return cart, nil
}

// LoadFromReader parses an iNES image from r and constructs a Cartridge,
// including the mapper named by the header. Per §6/§7 an unsupported
// mapper id is a load failure, not a silent fallback.
func LoadFromReader(r io.Reader) (*Cartridge, error) {
	var header iNESHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read iNES header: %w", err)
	}

	if string(header.Magic[:]) != "NES\x1A" {
		return nil, fmt.Errorf("not an iNES file (bad magic %q)", header.Magic[:])
	}

	if header.PRGROMSize == 0 {
		return nil, fmt.Errorf("invalid ROM: PRG-ROM size is zero")
	}

	cart := &Cartridge{
		mapperID:   (header.Flags6 >> 4) | (header.Flags7 & 0xF0),
		hasBattery: (header.Flags6 & 0x02) != 0,
	}

	if (header.Flags6 & 0x08) != 0 {
		cart.mirror = MirrorFourScreen
	} else if (header.Flags6 & 0x01) != 0 {
		cart.mirror = MirrorVertical
	} else {
		cart.mirror = MirrorHorizontal
	}

	if (header.Flags6 & 0x04) != 0 {
		trainer := make([]uint8, 512)
		if _, err := io.ReadFull(r, trainer); err != nil {
			return nil, fmt.Errorf("read trainer: %w", err)
		}
	}

	prgSize := int(header.PRGROMSize) * 16384
	cart.prgROM = make([]uint8, prgSize)
	if _, err := io.ReadFull(r, cart.prgROM); err != nil {
		return nil, fmt.Errorf("read PRG-ROM: %w", err)
	}

	chrSize := int(header.CHRROMSize) * 8192
	if chrSize > 0 {
		cart.chrROM = make([]uint8, chrSize)
		if _, err := io.ReadFull(r, cart.chrROM); err != nil {
			return nil, fmt.Errorf("read CHR-ROM: %w", err)
		}
	} else {
		cart.chrROM = make([]uint8, 8192)
		cart.hasCHRRAM = true
	}

	mapper, err := newMapper(cart.mapperID, cart)
	if err != nil {
		return nil, err
	}
	cart.mapper = mapper

	return cart, nil
}

// newMapper constructs the Mapper for the given iNES mapper id. Per the
// spec's Non-goals, only NROM (0) and MMC3 (4) are supported; any other id
// is a load failure.
func newMapper(id uint8, cart *Cartridge) (Mapper, error) {
	switch id {
	case 0:
		return NewMapper000(cart), nil
	case 4:
		return NewMapper004(cart), nil
	default:
		return nil, fmt.Errorf("unsupported mapper id %d", id)
	}
}

func (c *Cartridge) ReadPRG(address uint16) uint8        { return c.mapper.ReadPRG(address) }
func (c *Cartridge) WritePRG(address uint16, value uint8) { c.mapper.WritePRG(address, value) }
func (c *Cartridge) ReadCHR(address uint16) uint8         { return c.mapper.ReadCHR(address) }
func (c *Cartridge) WriteCHR(address uint16, value uint8) { c.mapper.WriteCHR(address, value) }

// NotifyA12 forwards a PPU VRAM access to the mapper's A12 edge filter.
func (c *Cartridge) NotifyA12(address uint16, ppuCycle uint64) {
	c.mapper.NotifyA12(address, ppuCycle)
}

func (c *Cartridge) IRQPending() bool { return c.mapper.IRQPending() }
func (c *Cartridge) ClearIRQ()        { c.mapper.ClearIRQ() }

// Reset restores the mapper to its power-on state. PRG-RAM/CHR-RAM content
// is preserved, matching real hardware (SRAM survives a console reset).
func (c *Cartridge) Reset() {
	c.mapper.Reset()
}

// MirrorMode returns the cartridge's current nametable mirroring mode.
// MMC3 may change this at runtime via its $A000 register.
func (c *Cartridge) MirrorMode() MirrorMode { return c.mirror }

func (c *Cartridge) MapperID() uint8 { return c.mapperID }

func (c *Cartridge) HasCHRRAM() bool { return c.hasCHRRAM }

// PRGRAM exposes the 8 KiB battery/work-RAM region for save-state capture.
func (c *Cartridge) PRGRAM() *[0x2000]uint8 { return &c.sram }

// CHR exposes the CHR memory (ROM or RAM) for save-state capture.
func (c *Cartridge) CHR() []uint8 { return c.chrROM }

func (c *Cartridge) HasBattery() bool { return c.hasBattery }

// Mapper exposes the concrete Mapper instance, used by internal/savestate
// to type-assert onto a mapper's own snapshot methods (e.g. MMC3's
// BankSnapshot/RestoreBankSnapshot).
func (c *Cartridge) Mapper() Mapper { return c.mapper }
