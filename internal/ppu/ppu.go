// Package ppu implements the NES Picture Processing Unit (2C02): a
// dot-accurate background/sprite pipeline driven one PPU cycle at a time.
package ppu

import "github.com/gones/gones/internal/cartridge"

// Cartridge is the narrow view of internal/cartridge.Cartridge the PPU
// needs: CHR access and the mapper A12 scanline-IRQ latch. The PPU holds a
// non-owning reference, constructed alongside CPU/APU/Bus by internal/nes.
type Cartridge interface {
	ReadCHR(address uint16) uint8
	WriteCHR(address uint16, value uint8)
	NotifyA12(address uint16, ppuCycle uint64)
	MirrorMode() cartridge.MirrorMode
}

// PPU is the NES 2C02.
type PPU struct {
	// CPU-visible register state
	ctrl    uint8 // $2000
	mask    uint8 // $2001
	status  uint8 // $2002
	oamAddr uint8 // $2003

	// Loopy scroll/address state
	v, t  uint16
	fineX uint8
	w     bool

	readBuffer uint8

	// Object Attribute Memory
	oam          [256]uint8
	secondaryOAM [32]uint8
	spriteIndexes [8]uint8
	spriteCount   uint8

	spritePatternLow, spritePatternHigh [8]uint8
	spriteAttr                         [8]uint8
	spriteX                            [8]uint8

	// Nametable RAM (2 KiB) and palette RAM (32 bytes), owned directly by
	// the PPU; CHR and mirroring resolution come from the cartridge.
	nametables [0x800]uint8
	paletteRAM [32]uint8

	// Background fetch pipeline
	ntByte, atByte                     uint8
	atBits                             uint8
	patternLowLatch, patternHighLatch  uint8
	bgShiftLow, bgShiftHigh            uint16
	bgAttrShiftLow, bgAttrShiftHigh    uint16

	// Timing
	scanline   int // 0-261; 261 is pre-render
	dot        int // 0-340
	cycleCount uint64
	frameCount uint64
	oddFrame   bool

	frameBuffer [256 * 240]uint32
	frameReady  bool

	nmiOutput bool
	nmiPending bool

	cart Cartridge
}

// New creates a PPU with no cartridge attached; call SetCartridge before
// the first Tick.
func New() *PPU {
	p := &PPU{}
	p.Reset()
	return p
}

// SetCartridge attaches the cartridge the PPU reads CHR data through and
// notifies of A12 transitions.
func (p *PPU) SetCartridge(cart Cartridge) {
	p.cart = cart
}

// Reset restores power-on state. Matches the teacher's choice to clear OAM
// on reset even though real hardware leaves it in whatever state it held.
func (p *PPU) Reset() {
	p.ctrl = 0
	p.mask = 0
	p.status = 0
	p.oamAddr = 0

	p.v, p.t, p.fineX, p.w = 0, 0, 0, false
	p.readBuffer = 0

	p.oam = [256]uint8{}
	p.secondaryOAM = [32]uint8{}
	p.spriteIndexes = [8]uint8{}
	p.spriteCount = 0

	p.ntByte, p.atByte, p.atBits = 0, 0, 0
	p.patternLowLatch, p.patternHighLatch = 0, 0
	p.bgShiftLow, p.bgShiftHigh = 0, 0
	p.bgAttrShiftLow, p.bgAttrShiftHigh = 0, 0

	p.scanline = 261
	p.dot = 0
	p.oddFrame = false

	p.nmiOutput = false
	p.nmiPending = false
	p.frameReady = false

	p.frameBuffer = [256 * 240]uint32{}
}

// TakeNMI reports and clears a pending PPU-raised NMI. The Bus calls this
// once per PPU dot (or once after the 3*cycles catch-up) and forwards a
// true result to cpu.QueueNMI, per §5's ordering guarantees.
func (p *PPU) TakeNMI() bool {
	if p.nmiPending {
		p.nmiPending = false
		return true
	}
	return false
}

// FrameReady reports and clears the latch set when a new frame has been
// fully rendered (at scanline 241 dot 1, matching real VBlank timing).
func (p *PPU) FrameReady() bool {
	ready := p.frameReady
	p.frameReady = false
	return ready
}

// FrameBuffer returns the current 256x240 ARGB framebuffer.
func (p *PPU) FrameBuffer() *[256 * 240]uint32 {
	return &p.frameBuffer
}

func (p *PPU) FrameCount() uint64 { return p.frameCount }
func (p *PPU) Scanline() int      { return p.scanline }
func (p *PPU) Dot() int           { return p.dot }
func (p *PPU) CycleCount() uint64 { return p.cycleCount }

// Snapshot is the serializable register/memory state of a PPU, used by
// internal/savestate. The framebuffer is excluded: it is cosmetic, fully
// reconstructed within one frame, and would bloat every save file.
type Snapshot struct {
	Ctrl, Mask, Status, OAMAddr uint8
	V, T                        uint16
	FineX                       uint8
	W                           bool
	ReadBuffer                  uint8

	OAM          [256]uint8
	SecondaryOAM [32]uint8

	Nametables [0x800]uint8
	PaletteRAM [32]uint8

	NTByte, ATByte, ATBits             uint8
	PatternLowLatch, PatternHighLatch  uint8
	BGShiftLow, BGShiftHigh            uint16
	BGAttrShiftLow, BGAttrShiftHigh    uint16

	Scanline   int
	Dot        int
	CycleCount uint64
	FrameCount uint64
	OddFrame   bool

	NMIOutput, NMIPending bool
}

// Snapshot captures the current PPU state for save-state serialization.
func (p *PPU) Snapshot() Snapshot {
	return Snapshot{
		Ctrl: p.ctrl, Mask: p.mask, Status: p.status, OAMAddr: p.oamAddr,
		V: p.v, T: p.t, FineX: p.fineX, W: p.w, ReadBuffer: p.readBuffer,
		OAM: p.oam, SecondaryOAM: p.secondaryOAM,
		Nametables: p.nametables, PaletteRAM: p.paletteRAM,
		NTByte: p.ntByte, ATByte: p.atByte, ATBits: p.atBits,
		PatternLowLatch: p.patternLowLatch, PatternHighLatch: p.patternHighLatch,
		BGShiftLow: p.bgShiftLow, BGShiftHigh: p.bgShiftHigh,
		BGAttrShiftLow: p.bgAttrShiftLow, BGAttrShiftHigh: p.bgAttrShiftHigh,
		Scanline: p.scanline, Dot: p.dot, CycleCount: p.cycleCount,
		FrameCount: p.frameCount, OddFrame: p.oddFrame,
		NMIOutput: p.nmiOutput, NMIPending: p.nmiPending,
	}
}

// Restore applies a previously captured Snapshot. The sprite-evaluation
// scratch state (spriteIndexes, spriteCount, sprite pattern shifters) is
// left at its Reset default since it is fully rebuilt by the next
// evaluateSprites/spriteFetchCycle pass and never survives a frame boundary
// in any state savestate.Save needs to preserve.
func (p *PPU) Restore(s Snapshot) {
	p.ctrl, p.mask, p.status, p.oamAddr = s.Ctrl, s.Mask, s.Status, s.OAMAddr
	p.v, p.t, p.fineX, p.w, p.readBuffer = s.V, s.T, s.FineX, s.W, s.ReadBuffer
	p.oam, p.secondaryOAM = s.OAM, s.SecondaryOAM
	p.nametables, p.paletteRAM = s.Nametables, s.PaletteRAM
	p.ntByte, p.atByte, p.atBits = s.NTByte, s.ATByte, s.ATBits
	p.patternLowLatch, p.patternHighLatch = s.PatternLowLatch, s.PatternHighLatch
	p.bgShiftLow, p.bgShiftHigh = s.BGShiftLow, s.BGShiftHigh
	p.bgAttrShiftLow, p.bgAttrShiftHigh = s.BGAttrShiftLow, s.BGAttrShiftHigh
	p.scanline, p.dot, p.cycleCount = s.Scanline, s.Dot, s.CycleCount
	p.frameCount, p.oddFrame = s.FrameCount, s.OddFrame
	p.nmiOutput, p.nmiPending = s.NMIOutput, s.NMIPending
}

func (p *PPU) backgroundEnabled() bool { return p.mask&0x08 != 0 }
func (p *PPU) spritesEnabled() bool    { return p.mask&0x10 != 0 }
func (p *PPU) renderingEnabled() bool  { return p.backgroundEnabled() || p.spritesEnabled() }

// ReadRegister services a CPU read of $2000-$2007 (the caller is
// responsible for mirroring 0x2000-0x3FFF down to this range).
func (p *PPU) ReadRegister(address uint16) uint8 {
	switch address & 0x7 {
	case 2:
		result := (p.status & 0xE0) | (p.readBuffer & 0x1F)
		p.status &^= 0x80
		p.w = false
		return result
	case 4:
		return p.oam[p.oamAddr]
	case 7:
		return p.readData()
	default:
		return (p.status & 0xE0) | (p.readBuffer & 0x1F)
	}
}

// WriteRegister services a CPU write of $2000-$2007.
func (p *PPU) WriteRegister(address uint16, value uint8) {
	switch address & 0x7 {
	case 0:
		p.writeCtrl(value)
	case 1:
		p.mask = value
	case 2:
		// read-only
	case 3:
		p.oamAddr = value
	case 4:
		p.oam[p.oamAddr] = value
		p.oamAddr++
	case 5:
		p.writeScroll(value)
	case 6:
		p.writeAddr(value)
	case 7:
		p.writeData(value)
	}
}

func (p *PPU) writeCtrl(value uint8) {
	prevOutput := p.nmiOutput
	p.ctrl = value
	p.t = (p.t &^ 0x0C00) | (uint16(value&0x03) << 10)
	p.nmiOutput = value&0x80 != 0
	if !prevOutput && p.nmiOutput && p.status&0x80 != 0 {
		p.nmiPending = true
	}
}

func (p *PPU) writeScroll(value uint8) {
	if !p.w {
		p.t = (p.t &^ 0x001F) | uint16(value>>3)
		p.fineX = value & 0x07
		p.w = true
	} else {
		p.t = (p.t &^ 0x7000) | (uint16(value&0x07) << 12)
		p.t = (p.t &^ 0x03E0) | (uint16(value>>3) << 5)
		p.w = false
	}
}

func (p *PPU) writeAddr(value uint8) {
	if !p.w {
		p.t = (p.t &^ 0x7F00) | (uint16(value&0x3F) << 8)
		p.w = true
	} else {
		p.t = (p.t &^ 0x00FF) | uint16(value)
		p.v = p.t
		p.w = false
	}
}

func (p *PPU) addressIncrement() uint16 {
	if p.ctrl&0x04 != 0 {
		return 32
	}
	return 1
}

func (p *PPU) readData() uint8 {
	var result uint8
	if p.v >= 0x3F00 {
		result = p.read(p.v)
		p.readBuffer = p.read(p.v - 0x1000)
	} else {
		result = p.readBuffer
		p.readBuffer = p.read(p.v)
	}
	p.v = (p.v + p.addressIncrement()) & 0x7FFF
	return result
}

func (p *PPU) writeData(value uint8) {
	p.write(p.v, value)
	p.v = (p.v + p.addressIncrement()) & 0x7FFF
}

// WriteOAM writes OAM directly at an index, used by Bus OAM DMA and by
// save-state restore; it does not touch oamAddr.
func (p *PPU) WriteOAM(index uint8, value uint8) {
	p.oam[index] = value
}

// read/write dispatch the internal 14-bit PPU bus: pattern tables through
// the cartridge, nametables through PPU-owned RAM (mirrored per the
// cartridge's MirrorMode), palette RAM with its mirroring quirks.
func (p *PPU) read(address uint16) uint8 {
	address &= 0x3FFF
	if address < 0x2000 {
		if p.cart != nil {
			p.cart.NotifyA12(address, p.cycleCount)
			return p.cart.ReadCHR(address)
		}
		return 0
	}
	if address < 0x3F00 {
		return p.nametables[p.mirrorNametable(address)]
	}
	return p.paletteRAM[paletteIndex(address)]
}

func (p *PPU) write(address uint16, value uint8) {
	address &= 0x3FFF
	if address < 0x2000 {
		if p.cart != nil {
			p.cart.NotifyA12(address, p.cycleCount)
			p.cart.WriteCHR(address, value)
		}
		return
	}
	if address < 0x3F00 {
		p.nametables[p.mirrorNametable(address)] = value
		return
	}
	p.paletteRAM[paletteIndex(address)] = value
}

func paletteIndex(address uint16) uint16 {
	index := address & 0x1F
	if index&0x13 == 0x10 {
		index &^= 0x10
	}
	return index
}

func (p *PPU) mirrorNametable(address uint16) uint16 {
	table := (address - 0x2000) % 0x1000
	index := table / 0x400
	offset := table % 0x400

	mirror := cartridge.MirrorHorizontal
	if p.cart != nil {
		mirror = p.cart.MirrorMode()
	}

	var physical uint16
	switch mirror {
	case cartridge.MirrorVertical:
		physical = index % 2
	case cartridge.MirrorSingleScreen0:
		physical = 0
	case cartridge.MirrorSingleScreen1:
		physical = 1
	default: // Horizontal and FourScreen (no extra VRAM modeled) fall back
		physical = index / 2
	}
	return physical*0x400 + offset
}

// Tick advances the PPU by one dot (one PPU cycle, 1/3 CPU cycle).
func (p *PPU) Tick() {
	p.cycleCount++

	if p.scanline <= 239 || p.scanline == 261 {
		p.renderTick()
	}

	if p.scanline == 241 && p.dot == 1 {
		p.status |= 0x80
		if p.nmiOutput {
			p.nmiPending = true
		}
		p.frameReady = true
	}

	if p.scanline == 261 && p.dot == 1 {
		p.status &^= 0xE0 // clear VBlank, sprite-0 hit, sprite overflow
	}

	p.advance()
}

func (p *PPU) advance() {
	p.dot++

	maxDot := 340
	if p.scanline == 261 && p.oddFrame && p.renderingEnabled() {
		maxDot = 339
	}

	if p.dot > maxDot {
		p.dot = 0
		p.scanline++
		if p.scanline > 261 {
			p.scanline = 0
			p.frameCount++
			p.oddFrame = !p.oddFrame
		}
	}
}

func (p *PPU) renderTick() {
	visible := p.scanline <= 239

	if p.renderingEnabled() {
		if (p.dot >= 1 && p.dot <= 256) || (p.dot >= 321 && p.dot <= 336) {
			p.backgroundFetchCycle()
		}
		if p.dot == 256 {
			p.incrementY()
		}
		if p.dot == 257 {
			p.copyX()
		}
		if p.scanline == 261 && p.dot >= 280 && p.dot <= 304 {
			p.copyY()
		}
		if visible && p.dot == 257 {
			p.evaluateSprites()
		}
		if p.dot >= 257 && p.dot <= 320 {
			p.spriteFetchCycle()
		}
	}

	if visible && p.dot >= 1 && p.dot <= 256 {
		p.composePixel()
	}
}

func (p *PPU) bgPatternBase() uint16 {
	if p.ctrl&0x10 != 0 {
		return 0x1000
	}
	return 0
}

func (p *PPU) fineY() uint16 { return (p.v >> 12) & 0x7 }

func (p *PPU) backgroundFetchCycle() {
	p.shiftBackgroundRegisters()

	switch p.dot % 8 {
	case 1:
		p.ntByte = p.read(0x2000 | (p.v & 0x0FFF))
	case 3:
		addr := 0x23C0 | (p.v & 0x0C00) | ((p.v >> 4) & 0x38) | ((p.v >> 2) & 0x07)
		p.atByte = p.read(addr)
		shift := ((p.v >> 4) & 4) | (p.v & 2)
		p.atBits = (p.atByte >> shift) & 0x03
	case 5:
		p.patternLowLatch = p.read(p.bgPatternBase() + uint16(p.ntByte)*16 + p.fineY())
	case 7:
		p.patternHighLatch = p.read(p.bgPatternBase() + uint16(p.ntByte)*16 + p.fineY() + 8)
	case 0:
		p.reloadBackgroundShifters()
		p.incrementX()
	}
}

func (p *PPU) shiftBackgroundRegisters() {
	p.bgShiftLow <<= 1
	p.bgShiftHigh <<= 1
	p.bgAttrShiftLow <<= 1
	p.bgAttrShiftHigh <<= 1
}

func (p *PPU) reloadBackgroundShifters() {
	p.bgShiftLow = (p.bgShiftLow &^ 0x00FF) | uint16(p.patternLowLatch)
	p.bgShiftHigh = (p.bgShiftHigh &^ 0x00FF) | uint16(p.patternHighLatch)

	var lowFill, highFill uint16
	if p.atBits&0x01 != 0 {
		lowFill = 0xFF
	}
	if p.atBits&0x02 != 0 {
		highFill = 0xFF
	}
	p.bgAttrShiftLow = (p.bgAttrShiftLow &^ 0x00FF) | lowFill
	p.bgAttrShiftHigh = (p.bgAttrShiftHigh &^ 0x00FF) | highFill
}

func (p *PPU) incrementX() {
	if p.v&0x001F == 31 {
		p.v &^= 0x001F
		p.v ^= 0x0400
	} else {
		p.v++
	}
}

func (p *PPU) incrementY() {
	if p.v&0x7000 != 0x7000 {
		p.v += 0x1000
		return
	}
	p.v &^= 0x7000
	y := (p.v & 0x03E0) >> 5
	switch y {
	case 29:
		y = 0
		p.v ^= 0x0800
	case 31:
		y = 0
	default:
		y++
	}
	p.v = (p.v &^ 0x03E0) | (y << 5)
}

func (p *PPU) copyX() { p.v = (p.v &^ 0x041F) | (p.t & 0x041F) }
func (p *PPU) copyY() { p.v = (p.v &^ 0x7BE0) | (p.t & 0x7BE0) }

func (p *PPU) backgroundPixel() (pixel, palette uint8) {
	mux := uint16(0x8000) >> p.fineX
	var lo, hi uint8
	if p.bgShiftLow&mux != 0 {
		lo = 1
	}
	if p.bgShiftHigh&mux != 0 {
		hi = 1
	}
	pixel = (hi << 1) | lo

	var paletteLo, paletteHi uint8
	if p.bgAttrShiftLow&mux != 0 {
		paletteLo = 1
	}
	if p.bgAttrShiftHigh&mux != 0 {
		paletteHi = 1
	}
	palette = (paletteHi << 1) | paletteLo
	return
}

// spriteHeight returns the current sprite height per PPUCTRL bit 5.
func (p *PPU) spriteHeight() int {
	if p.ctrl&0x20 != 0 {
		return 16
	}
	return 8
}

// evaluateSprites runs the simplified per-scanline sprite evaluation: the
// first 8 sprites in OAM order whose row falls in range are copied to
// secondary OAM; a 9th match sets the overflow flag (the real hardware's
// diagonal-read overflow bug is not modeled).
func (p *PPU) evaluateSprites() {
	for i := range p.secondaryOAM {
		p.secondaryOAM[i] = 0xFF
	}
	for i := range p.spriteIndexes {
		p.spriteIndexes[i] = 0xFF
	}
	p.spriteCount = 0

	height := p.spriteHeight()
	found := 0
	for n := 0; n < 64; n++ {
		y := int(p.oam[n*4])
		row := p.scanline - y
		if row < 0 || row >= height {
			continue
		}
		if found < 8 {
			base := found * 4
			copy(p.secondaryOAM[base:base+4], p.oam[n*4:n*4+4])
			p.spriteIndexes[found] = uint8(n)
			found++
		} else {
			p.status |= 0x20
			break
		}
	}
	p.spriteCount = uint8(found)
}

func (p *PPU) spritePatternBase() uint16 {
	if p.ctrl&0x08 != 0 {
		return 0x1000
	}
	return 0
}

// spriteFetchCycle fetches the low/high pattern bytes for one secondary-OAM
// slot across its 8-dot window within dots 257-320.
func (p *PPU) spriteFetchCycle() {
	slot := (p.dot - 257) / 8
	phase := (p.dot - 257) % 8
	if slot >= 8 || (phase != 4 && phase != 6) {
		return
	}

	tile := p.secondaryOAM[slot*4+1]
	attr := p.secondaryOAM[slot*4+2]
	y := int(p.secondaryOAM[slot*4])
	x := p.secondaryOAM[slot*4+3]

	height := p.spriteHeight()
	patternTable := p.spritePatternBase()
	tileIndex := uint16(tile)
	if p.ctrl&0x20 != 0 {
		patternTable = uint16(tile&0x01) * 0x1000
		tileIndex = uint16(tile &^ 0x01)
	}

	row := p.scanline - y
	if row < 0 {
		row = 0
	}
	if attr&0x80 != 0 { // vertical flip
		row = height - 1 - row
	}
	if p.ctrl&0x20 != 0 && row >= 8 {
		tileIndex++
		row -= 8
	}

	addr := patternTable + tileIndex*16 + uint16(row)
	if phase == 6 {
		addr += 8
	}
	b := p.read(addr)
	if attr&0x40 != 0 { // horizontal flip
		b = reverseBits(b)
	}

	if phase == 4 {
		p.spritePatternLow[slot] = b
		p.spriteAttr[slot] = attr
		p.spriteX[slot] = x
	} else {
		p.spritePatternHigh[slot] = b
	}
}

func reverseBits(b uint8) uint8 {
	var r uint8
	for i := 0; i < 8; i++ {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
}

// spritePixelAt returns the first non-transparent sprite pixel at screen
// column x, scanning secondary-OAM slots in priority order (slot 0 wins
// ties), along with its palette, priority flag, and whether it belongs to
// OAM sprite 0.
func (p *PPU) spritePixelAt(x int) (pixel, palette uint8, priority, isSpriteZero bool) {
	for i := 0; i < int(p.spriteCount); i++ {
		offset := x - int(p.spriteX[i])
		if offset < 0 || offset > 7 {
			continue
		}
		shift := 7 - uint(offset)
		lo := (p.spritePatternLow[i] >> shift) & 1
		hi := (p.spritePatternHigh[i] >> shift) & 1
		pix := (hi << 1) | lo
		if pix == 0 {
			continue
		}
		return pix, p.spriteAttr[i] & 0x03, p.spriteAttr[i]&0x20 != 0, p.spriteIndexes[i] == 0
	}
	return 0, 0, false, false
}

func (p *PPU) composePixel() {
	x := p.dot - 1
	y := p.scanline

	bgPixel, bgPalette := p.backgroundPixel()
	spritePixel, spritePalette, spritePriority, isSpriteZero := p.spritePixelAt(x)

	clipLeft := x < 8
	if clipLeft && p.mask&0x02 == 0 {
		bgPixel = 0
	}
	if clipLeft && p.mask&0x04 == 0 {
		spritePixel = 0
	}
	if !p.backgroundEnabled() {
		bgPixel = 0
	}
	if !p.spritesEnabled() {
		spritePixel = 0
	}

	if isSpriteZero && bgPixel != 0 && spritePixel != 0 && x < 255 {
		p.status |= 0x40
	}

	var paletteAddr uint16
	switch {
	case bgPixel == 0 && spritePixel == 0:
		paletteAddr = 0x3F00
	case bgPixel == 0:
		paletteAddr = 0x3F10 + uint16(spritePalette)*4 + uint16(spritePixel)
	case spritePixel == 0:
		paletteAddr = 0x3F00 + uint16(bgPalette)*4 + uint16(bgPixel)
	case spritePriority:
		paletteAddr = 0x3F00 + uint16(bgPalette)*4 + uint16(bgPixel)
	default:
		paletteAddr = 0x3F10 + uint16(spritePalette)*4 + uint16(spritePixel)
	}

	colorIndex := p.read(paletteAddr)
	p.frameBuffer[y*256+x] = 0xFF000000 | nesPalette[colorIndex&0x3F]
}
