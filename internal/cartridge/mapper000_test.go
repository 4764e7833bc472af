package cartridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapper000_16KiBPRGIsMirrored(t *testing.T) {
	cart, err := NewTestROMBuilder().WithPRGSize(1).WithData(0, []uint8{0x42}).Build()
	require.NoError(t, err)
	c, err := LoadFromBytes(cart)
	require.NoError(t, err)

	require.Equal(t, uint8(0x42), c.ReadPRG(0x8000))
	require.Equal(t, uint8(0x42), c.ReadPRG(0xC000), "16 KiB PRG must mirror into the upper half")
}

func TestMapper000_32KiBPRGIsNotMirrored(t *testing.T) {
	cart, err := NewTestROMBuilder().WithPRGSize(2).WithData(0, []uint8{0x11}).WithData(0x4000, []uint8{0x22}).Build()
	require.NoError(t, err)
	c, err := LoadFromBytes(cart)
	require.NoError(t, err)

	require.Equal(t, uint8(0x11), c.ReadPRG(0x8000))
	require.Equal(t, uint8(0x22), c.ReadPRG(0xC000))
}

func TestMapper000_PRGRAMReadWrite(t *testing.T) {
	cart, err := NewTestROMBuilder().Build()
	require.NoError(t, err)
	c, err := LoadFromBytes(cart)
	require.NoError(t, err)

	c.WritePRG(0x6000, 0x99)
	require.Equal(t, uint8(0x99), c.ReadPRG(0x6000))
	require.Equal(t, uint8(0), c.ReadPRG(0x6001))
}

func TestMapper000_CHRRAMIsWritable(t *testing.T) {
	cart, err := NewTestROMBuilder().WithCHRSize(0).Build()
	require.NoError(t, err)
	c, err := LoadFromBytes(cart)
	require.NoError(t, err)

	c.WriteCHR(0x0010, 0x7E)
	require.Equal(t, uint8(0x7E), c.ReadCHR(0x0010))
}

func TestMapper000_CHRROMIsReadOnly(t *testing.T) {
	data := make([]byte, 8192)
	data[5] = 0xAA
	cart, err := NewTestROMBuilder().WithCHRSize(1).WithCHRData(data).Build()
	require.NoError(t, err)
	c, err := LoadFromBytes(cart)
	require.NoError(t, err)

	require.Equal(t, uint8(0xAA), c.ReadCHR(5))
	c.WriteCHR(5, 0xFF)
	require.Equal(t, uint8(0xAA), c.ReadCHR(5))
}

func TestMapper000_IRQNeverPending(t *testing.T) {
	cart, err := NewTestROMBuilder().Build()
	require.NoError(t, err)
	c, err := LoadFromBytes(cart)
	require.NoError(t, err)

	c.NotifyA12(0x1000, 100)
	c.NotifyA12(0x1000, 200)
	require.False(t, c.IRQPending())
}
