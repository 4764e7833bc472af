// Package bus implements the NES system bus: the CPU-visible address
// decoder plus the cycle-accurate scheduling that keeps CPU, PPU, and APU
// in lockstep (3 PPU dots and 1 APU tick per CPU cycle), services OAM DMA,
// and routes NMI/IRQ between components.
package bus

import (
	"github.com/gones/gones/internal/apu"
	"github.com/gones/gones/internal/cpu"
	"github.com/gones/gones/internal/input"
	"github.com/gones/gones/internal/memory"
	"github.com/gones/gones/internal/ppu"
)

// Cartridge is the narrow view of internal/cartridge.Cartridge the Bus
// needs: PRG access for Memory plus mapper IRQ polling. CHR access and the
// A12 latch are wired directly into the PPU by LoadCartridge.
type Cartridge interface {
	memory.CartridgeInterface
	ppu.Cartridge
	IRQPending() bool
	ClearIRQ()
}

// Bus wires CPU, PPU, APU, Memory, and Input together and drives the
// cycle-accurate scheduling described by the frame loop: each CPU step is
// followed by a 3:1 PPU/APU catch-up, NMI is polled before the step and
// after every PPU dot during catch-up, and IRQ is sampled once per step.
type Bus struct {
	CPU    *cpu.CPU
	PPU    *ppu.PPU
	APU    *apu.APU
	Memory *memory.Memory
	Input  *input.InputState

	cartridge Cartridge

	cpuCycles uint64

	dmaPending bool
	dmaPage    uint8

	executionLog   []ExecutionEvent
	loggingEnabled bool
}

// New creates a system bus with no cartridge loaded. LoadCartridge must be
// called before Step will execute anything meaningful.
func New() *Bus {
	b := &Bus{
		PPU:   ppu.New(),
		APU:   apu.New(),
		Input: input.NewInputState(),
	}

	b.Memory = memory.New(b.PPU, b.APU, nil)
	b.Memory.SetInputSystem(b.Input)
	b.Memory.SetDMACallback(b.queueOAMDMA)
	b.APU.SetReadSampleByte(b.Memory.Read)

	b.CPU = cpu.New(b.Memory)

	b.Reset()
	return b
}

// Reset resets every component to its power-on state.
func (b *Bus) Reset() {
	b.CPU.Reset()
	b.PPU.Reset()
	b.APU.Reset()
	b.Input.Reset()
	if b.cartridge != nil {
		b.cartridge.ClearIRQ()
	}

	b.cpuCycles = 0
	b.dmaPending = false
	b.dmaPage = 0
	b.executionLog = nil
}

// LoadCartridge inserts a cartridge and resets the system so the CPU starts
// from the cartridge's reset vector.
func (b *Bus) LoadCartridge(cart Cartridge) {
	b.cartridge = cart
	b.Memory.SetCartridge(cart)
	b.PPU.SetCartridge(cart)
	b.Reset()
}

// queueOAMDMA is the Memory DMA callback for $4014 writes: it only latches
// the request. Per §4.4/§5, the actual 256-byte transfer and CPU stall
// happen at the start of the next Step, not synchronously with the write.
func (b *Bus) queueOAMDMA(page uint8) {
	b.dmaPending = true
	b.dmaPage = page
}

// performOAMDMA runs the 256-byte transfer and returns the CPU stall in
// cycles: 513, or 514 if the current CPU cycle count is odd.
func (b *Bus) performOAMDMA() uint64 {
	sourceAddress := uint16(b.dmaPage) << 8
	for i := uint16(0); i < 256; i++ {
		value := b.Memory.Read(sourceAddress + i)
		b.PPU.WriteOAM(uint8(i), value)
	}
	b.dmaPending = false

	stallCycles := uint64(513)
	if b.cpuCycles%2 == 1 {
		stallCycles = 514
	}
	return stallCycles
}

// Step services any pending OAM DMA, polls for an NMI raised since the last
// step, services any pending NMI/IRQ, executes one CPU instruction, and
// catches the PPU/APU up by that instruction's cycle count. It returns the
// number of CPU cycles consumed, including any DMA stall and interrupt
// servicing.
func (b *Bus) Step() uint64 {
	var stallCycles uint64
	if b.dmaPending {
		stallCycles = b.performOAMDMA()
		b.tick(stallCycles)
	}

	if b.PPU.TakeNMI() {
		b.CPU.QueueNMI()
	}

	interruptCycles := b.CPU.PollInterrupts()
	if interruptCycles > 0 {
		b.tick(interruptCycles)
	}

	prePC := b.CPU.PC
	preOpcode := b.Memory.Read(prePC)

	cpuCycles := b.CPU.Step()
	b.tick(cpuCycles)

	total := stallCycles + interruptCycles + cpuCycles
	b.cpuCycles += total

	if b.loggingEnabled {
		b.executionLog = append(b.executionLog, ExecutionEvent{
			StepNumber:    len(b.executionLog) + 1,
			CPUCycles:     b.cpuCycles,
			PPUCycles:     b.cpuCycles * 3,
			FrameCount:    b.PPU.FrameCount(),
			PCValue:       prePC,
			InstructionOp: preOpcode,
		})
	}

	return total
}

// Tick advances PPU and APU by 3*cpuCycles dots / cpuCycles ticks and polls
// mapper/frame IRQ, without stepping the CPU itself. This is the
// non-interactive entry point named in §4.4 ("bus.tick(cpu_cycles)"), used
// by harnesses that drive the CPU externally (e.g. trace comparisons) and
// just need the Bus to keep PPU/APU/mapper state caught up.
func (b *Bus) Tick(cpuCycles uint64) {
	b.tick(cpuCycles)
}

func (b *Bus) tick(cpuCycles uint64) {
	for i := uint64(0); i < cpuCycles; i++ {
		b.APU.Step()
	}

	dots := cpuCycles * 3
	for i := uint64(0); i < dots; i++ {
		b.PPU.Tick()
		if b.PPU.TakeNMI() {
			b.CPU.QueueNMI()
		}
	}

	irqAsserted := b.APU.IRQPending()
	if b.cartridge != nil && b.cartridge.IRQPending() {
		irqAsserted = true
	}
	b.CPU.SetIRQLine(irqAsserted)
}

// Run advances the system until at least the given number of frames have
// completed.
func (b *Bus) Run(frames int) {
	target := b.PPU.FrameCount() + uint64(frames)
	for b.PPU.FrameCount() < target {
		b.Step()
	}
}

// RunCycles advances the system by at least the given number of CPU cycles.
func (b *Bus) RunCycles(cycles uint64) {
	target := b.cpuCycles + cycles
	for b.cpuCycles < target {
		b.Step()
	}
}

// GetCycleCount returns the total CPU cycle count since the last Reset.
func (b *Bus) GetCycleCount() uint64 {
	return b.cpuCycles
}

// GetFrameCount returns the number of frames the PPU has completed.
func (b *Bus) GetFrameCount() uint64 {
	return b.PPU.FrameCount()
}

// IsDMAInProgress reports whether an OAM DMA request is latched but not yet
// serviced (it is always serviced by the start of the following Step).
func (b *Bus) IsDMAInProgress() bool {
	return b.dmaPending
}

// GetFrameBuffer returns the current 256x240 ARGB framebuffer.
func (b *Bus) GetFrameBuffer() *[256 * 240]uint32 {
	return b.PPU.FrameBuffer()
}

// DrainAudio copies up to len(dst) pending audio samples into dst in FIFO
// order and returns the number copied.
func (b *Bus) DrainAudio(dst []float32) int {
	return b.APU.DrainBuffer(dst)
}

// SetAudioSampleRate sets the APU's target output sample rate.
func (b *Bus) SetAudioSampleRate(rate int) {
	b.APU.SetSampleRate(rate)
}

// SetControllerButtons sets all eight button states for a controller (1 or
// 2).
func (b *Bus) SetControllerButtons(controller int, buttons [8]bool) {
	switch controller {
	case 1:
		b.Input.SetButtons1(buttons)
	case 2:
		b.Input.SetButtons2(buttons)
	}
}

// GetInputState returns the input state for direct access.
func (b *Bus) GetInputState() *input.InputState {
	return b.Input
}

// ExecutionEvent records one Step's CPU/PPU timing for test harnesses.
type ExecutionEvent struct {
	StepNumber    int
	CPUCycles     uint64
	PPUCycles     uint64
	FrameCount    uint64
	PCValue       uint16
	InstructionOp uint8
}

// EnableExecutionLogging turns on per-Step execution logging.
func (b *Bus) EnableExecutionLogging() {
	b.loggingEnabled = true
}

// DisableExecutionLogging turns off per-Step execution logging.
func (b *Bus) DisableExecutionLogging() {
	b.loggingEnabled = false
}

// GetExecutionLog returns the accumulated execution log.
func (b *Bus) GetExecutionLog() []ExecutionEvent {
	return b.executionLog
}

// ClearExecutionLog discards the accumulated execution log.
func (b *Bus) ClearExecutionLog() {
	b.executionLog = nil
}

// CPUState is a snapshot of CPU register/flag state for test harnesses.
type CPUState struct {
	PC      uint16
	A, X, Y uint8
	SP      uint8
	Cycles  uint64
	Flags   CPUFlags
}

// CPUFlags is a snapshot of the 6502 status flags.
type CPUFlags struct {
	N, V, B, D, I, Z, C bool
}

// GetCPUState returns the current CPU register/flag state.
func (b *Bus) GetCPUState() CPUState {
	return CPUState{
		PC:     b.CPU.PC,
		A:      b.CPU.A,
		X:      b.CPU.X,
		Y:      b.CPU.Y,
		SP:     b.CPU.SP,
		Cycles: b.cpuCycles,
		Flags: CPUFlags{
			N: b.CPU.N,
			V: b.CPU.V,
			B: b.CPU.B,
			D: b.CPU.D,
			I: b.CPU.I,
			Z: b.CPU.Z,
			C: b.CPU.C,
		},
	}
}
