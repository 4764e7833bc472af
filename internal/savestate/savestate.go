// Package savestate implements binary snapshot/restore of a full
// internal/nes.Nes aggregate: CPU registers and cycle count, PPU registers
// and VRAM/OAM/palette/loopy state, APU channel and frame-sequencer state,
// Bus RAM and controller latches, and cartridge PRG-RAM/CHR-RAM and mapper
// register state.
//
// Grounded on the reference implementation's C save-state module: a fixed
// magic plus version prefix followed by a flat dump of emulator state, load
// failing outright on any mismatch rather than attempting a partial or
// best-effort restore.
package savestate

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/gones/gones/internal/apu"
	"github.com/gones/gones/internal/cartridge"
	"github.com/gones/gones/internal/cpu"
	"github.com/gones/gones/internal/input"
	"github.com/gones/gones/internal/nes"
	"github.com/gones/gones/internal/ppu"
)

// magic identifies a gones save-state file; version guards the payload
// shape so an old file is rejected cleanly instead of decoding garbage.
const (
	magic   = "GONESAV1"
	version = 1
)

// CartridgeSnapshot is the serializable PRG-RAM/CHR-RAM/mapper-register
// state of a loaded cartridge.
type CartridgeSnapshot struct {
	MapperID  uint8
	PRGRAM    [0x2000]uint8
	CHR       []uint8
	HasCHRRAM bool

	// Mapper004 holds MMC3 bank/IRQ register state when MapperID == 4; nil
	// for every other supported mapper.
	Mapper004 *cartridge.Mapper004State
}

// snapshot is the full payload gob-encodes after the magic/version header.
type snapshot struct {
	ROMPath   string
	CPU       cpu.Snapshot
	PPU       ppu.Snapshot
	APU       apu.Snapshot
	RAM       [0x800]uint8
	Input     input.InputSnapshot
	Cartridge CartridgeSnapshot
}

// mapper004Snapshotter is the narrow interface savestate needs from an MMC3
// mapper instance; it is satisfied by *cartridge.Mapper004 without either
// package importing the other's concrete type for this purpose alone.
type mapper004Snapshotter interface {
	BankSnapshot() cartridge.Mapper004State
	RestoreBankSnapshot(cartridge.Mapper004State)
}

// Save writes a snapshot of n's full state to path. It returns an error if
// no cartridge is loaded, or if the file cannot be written.
func Save(n *nes.Nes, path string) error {
	cart := n.Cartridge()
	if cart == nil {
		return fmt.Errorf("savestate: save %s: no cartridge loaded", path)
	}

	s := snapshot{
		ROMPath: n.ROMPath(),
		CPU:     n.Bus.CPU.Snapshot(),
		PPU:     n.Bus.PPU.Snapshot(),
		APU:     n.Bus.APU.Snapshot(),
		RAM:     *n.Bus.Memory.RAM(),
		Input:   n.Bus.Input.Snapshot(),
		Cartridge: CartridgeSnapshot{
			MapperID:  cart.MapperID(),
			PRGRAM:    *cart.PRGRAM(),
			HasCHRRAM: cart.HasCHRRAM(),
		},
	}

	if cart.HasCHRRAM() {
		s.Cartridge.CHR = append([]uint8(nil), cart.CHR()...)
	}

	if snap, ok := cart.Mapper().(mapper004Snapshotter); ok {
		bankState := snap.BankSnapshot()
		s.Cartridge.Mapper004 = &bankState
	}

	var buf bytes.Buffer
	if _, err := buf.WriteString(magic); err != nil {
		return fmt.Errorf("savestate: save %s: %w", path, err)
	}
	if err := buf.WriteByte(version); err != nil {
		return fmt.Errorf("savestate: save %s: %w", path, err)
	}
	if err := gob.NewEncoder(&buf).Encode(&s); err != nil {
		return fmt.Errorf("savestate: encode %s: %w", path, err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("savestate: write %s: %w", path, err)
	}
	return nil
}

// Load reads a snapshot from path and restores it into n, which must
// already have the same cartridge loaded (LoadROM must be called first, so
// PRG-ROM/CHR-ROM content and the mapper instance already exist; the
// snapshot only carries the mutable state layered on top). On any error n
// is left completely untouched: validation and decoding happen into a
// scratch value before anything is applied.
func Load(n *nes.Nes, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("savestate: read %s: %w", path, err)
	}

	s, err := decode(data)
	if err != nil {
		return fmt.Errorf("savestate: load %s: %w", path, err)
	}

	cart := n.Cartridge()
	if cart == nil {
		return fmt.Errorf("savestate: load %s: no cartridge loaded", path)
	}
	if cart.MapperID() != s.Cartridge.MapperID {
		return fmt.Errorf("savestate: load %s: mapper id mismatch (have %d, want %d)",
			path, cart.MapperID(), s.Cartridge.MapperID)
	}

	n.Bus.CPU.Restore(s.CPU)
	n.Bus.PPU.Restore(s.PPU)
	n.Bus.APU.Restore(s.APU)
	n.Bus.Memory.RestoreRAM(s.RAM)
	n.Bus.Input.Restore(s.Input)

	*cart.PRGRAM() = s.Cartridge.PRGRAM
	if s.Cartridge.HasCHRRAM && cart.HasCHRRAM() {
		copy(cart.CHR(), s.Cartridge.CHR)
	}
	if s.Cartridge.Mapper004 != nil {
		if snap, ok := cart.Mapper().(mapper004Snapshotter); ok {
			snap.RestoreBankSnapshot(*s.Cartridge.Mapper004)
		}
	}

	return nil
}

// decode validates the magic/version header and gob-decodes the payload
// without mutating any caller state, so Load can apply it atomically only
// once decode has fully succeeded.
func decode(data []byte) (snapshot, error) {
	var s snapshot

	if len(data) < len(magic)+1 {
		return s, fmt.Errorf("file too short to be a save state (%d bytes)", len(data))
	}
	if string(data[:len(magic)]) != magic {
		return s, fmt.Errorf("bad magic %q", data[:len(magic)])
	}

	gotVersion := data[len(magic)]
	if gotVersion != version {
		return s, fmt.Errorf("unsupported save state version %d (want %d)", gotVersion, version)
	}

	payload := data[len(magic)+1:]
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&s); err != nil {
		if err == io.EOF {
			return s, fmt.Errorf("truncated save state payload")
		}
		return s, fmt.Errorf("decode payload: %w", err)
	}
	return s, nil
}
