package cartridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newMMC3Cartridge(t *testing.T, prgBanks16k, chrBanks8k uint8) (*Cartridge, *Mapper004) {
	t.Helper()
	rom, err := NewTestROMBuilder().WithMapper(4).WithPRGSize(prgBanks16k).WithCHRSize(chrBanks8k).Build()
	require.NoError(t, err)
	cart, err := LoadFromBytes(rom)
	require.NoError(t, err)
	mmc3, ok := cart.mapper.(*Mapper004)
	require.True(t, ok)
	return cart, mmc3
}

func TestMapper004_FixedLastTwoPRGBanks(t *testing.T) {
	// 4 PRG banks of 16 KiB = 8 banks of 8 KiB; last=7, secondLast=6.
	cart, _ := newMMC3Cartridge(t, 4, 1)

	// Mark bank 7 (last) and bank 6 (second-to-last) with sentinel bytes.
	prgROM := cart.prgROM
	prgROM[7*0x2000] = 0xAA
	prgROM[6*0x2000] = 0xBB

	require.Equal(t, uint8(0xAA), cart.ReadPRG(0xE000), "0xE000 slot is always the last bank")
	require.Equal(t, uint8(0xBB), cart.ReadPRG(0xC000), "0xC000 slot is second-to-last when prg_mode=0")
}

func TestMapper004_PRGModeSwapsSlots(t *testing.T) {
	cart, mmc3 := newMMC3Cartridge(t, 4, 1)
	prgROM := cart.prgROM
	prgROM[2*0x2000] = 0x22 // bank_data[6] will select bank 2
	prgROM[6*0x2000] = 0xBB // second-to-last (bank 6)

	cart.WritePRG(0x8000, 0x06) // bank_select = 6
	cart.WritePRG(0x8001, 0x02) // bank_data[6] = 2

	require.Equal(t, uint8(0), mmc3.prgMode)
	require.Equal(t, uint8(0x22), cart.ReadPRG(0x8000), "prg_mode=0: 0x8000 slot is bank_data[6]")

	cart.WritePRG(0x8000, 0x40) // prg_mode=1, bank_select=0
	require.Equal(t, uint8(0xBB), cart.ReadPRG(0x8000), "prg_mode=1: 0x8000 slot is second-to-last")
	require.Equal(t, uint8(0x22), cart.ReadPRG(0xC000), "prg_mode=1: 0xC000 slot is bank_data[6]")
}

func TestMapper004_CHRModeSlotLayout(t *testing.T) {
	cart, _ := newMMC3Cartridge(t, 2, 2)
	chrROM := cart.chrROM
	for i := range chrROM {
		chrROM[i] = uint8(i / 0x400) // tag each 1 KiB bank with its index
	}

	cart.WritePRG(0x8000, 0x00) // bank_select=0, chr_mode=0
	cart.WritePRG(0x8001, 0x04) // bank_data[0] = 4 (forced even -> banks 4,5)
	cart.WritePRG(0x8000, 0x02)
	cart.WritePRG(0x8001, 0x06) // bank_data[2] = 6 (1 KiB slot 4 in chr_mode 0)

	require.Equal(t, uint8(4), cart.ReadCHR(0x0000))
	require.Equal(t, uint8(5), cart.ReadCHR(0x0400))
	require.Equal(t, uint8(6), cart.ReadCHR(0x1000))
}

func TestMapper004_MirroringRegisterFollowsXORFormula(t *testing.T) {
	cart, _ := newMMC3Cartridge(t, 2, 1)

	cart.WritePRG(0xA000, 0x00)
	require.Equal(t, MirrorVertical, cart.MirrorMode())

	cart.WritePRG(0xA000, 0x01)
	require.Equal(t, MirrorHorizontal, cart.MirrorMode())
}

func TestMapper004_IRQFiresOncePerFilteredEdge(t *testing.T) {
	_, mmc3 := newMMC3Cartridge(t, 2, 1)
	mmc3.irqLatch = 4
	mmc3.irqEnabled = true
	mmc3.irqReload = true

	// Two edges separated by more than the 12-cycle filter window clock
	// the counter twice; an edge inside the filter window is rejected.
	mmc3.NotifyA12(0x1000, 0)
	mmc3.a12Prev = false
	mmc3.NotifyA12(0x1000, 20)
	require.Equal(t, uint8(4), mmc3.irqCounter, "reload consumes the first filtered edge")

	mmc3.a12Prev = false
	mmc3.NotifyA12(0x1000, 25) // within 12 cycles of the previous high observation -> filtered out
	require.Equal(t, uint8(4), mmc3.irqCounter)

	mmc3.a12Prev = false
	mmc3.NotifyA12(0x1000, 40)
	require.Equal(t, uint8(3), mmc3.irqCounter)
}

func TestMapper004_IRQPendingWhenCounterReachesZero(t *testing.T) {
	_, mmc3 := newMMC3Cartridge(t, 2, 1)
	mmc3.irqLatch = 0
	mmc3.irqEnabled = true
	mmc3.irqReload = true

	mmc3.NotifyA12(0x1000, 0)
	mmc3.a12Prev = false
	mmc3.NotifyA12(0x1000, 20)

	require.True(t, mmc3.IRQPending())
	mmc3.ClearIRQ()
	require.False(t, mmc3.IRQPending())
}

func TestMapper004_E000DisablesIRQAndClearsPending(t *testing.T) {
	cart, mmc3 := newMMC3Cartridge(t, 2, 1)
	mmc3.irqPending = true
	mmc3.irqEnabled = true

	cart.WritePRG(0xE000, 0x00)
	require.False(t, mmc3.irqEnabled)
	require.False(t, mmc3.IRQPending())

	cart.WritePRG(0xE001, 0x00)
	require.True(t, mmc3.irqEnabled)
}
