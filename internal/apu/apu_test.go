package apu

import "testing"

func TestNewInitializesNoiseLFSR(t *testing.T) {
	a := New()
	if a.noise.shiftRegister != 1 {
		t.Errorf("expected noise LFSR seeded to 1, got %d", a.noise.shiftRegister)
	}
}

func TestResetClearsChannelsAndRing(t *testing.T) {
	a := New()
	a.WriteRegister(0x4015, 0x1F)
	a.WriteRegister(0x4003, 0xF8)
	a.pushSample(0.5)

	a.Reset()

	if a.pulse1.lengthCounter != 0 || a.ringCount != 0 {
		t.Error("expected Reset to clear channel state and the sample ring")
	}
	if a.noise.shiftRegister != 1 {
		t.Error("expected Reset to reseed the noise LFSR to 1")
	}
}

func TestPulseLengthCounterLoadRequiresChannelEnable(t *testing.T) {
	a := New()
	// channel disabled: writing $4003 must not load the length counter
	a.WriteRegister(0x4003, 0xF8) // length index 31 -> table value 2
	if a.pulse1.lengthCounter != 0 {
		t.Errorf("expected no length load while pulse1 disabled, got %d", a.pulse1.lengthCounter)
	}

	a.WriteRegister(0x4015, 0x01) // enable pulse1
	a.WriteRegister(0x4003, 0xF8)
	if a.pulse1.lengthCounter != lengthTable[31] {
		t.Errorf("expected length counter %d, got %d", lengthTable[31], a.pulse1.lengthCounter)
	}
}

func TestChannelDisableZeroesLengthCounter(t *testing.T) {
	a := New()
	a.WriteRegister(0x4015, 0x01)
	a.WriteRegister(0x4003, 0xF8)
	if a.pulse1.lengthCounter == 0 {
		t.Fatal("setup failed: expected nonzero length counter")
	}

	a.WriteRegister(0x4015, 0x00)
	if a.pulse1.lengthCounter != 0 {
		t.Error("expected disabling pulse1 to zero its length counter")
	}
}

func TestPulseAndNoiseTimersClockAtHalfCPURate(t *testing.T) {
	a := New()
	a.WriteRegister(0x4015, 0x01) // enable pulse1
	a.WriteRegister(0x4002, 0x02) // timer low = 2
	a.WriteRegister(0x4003, 0x00) // timer high = 0, timer = 2

	startPos := a.pulse1.sequencerPos
	a.Step() // halfCycle flips true->false path depending on start; just ensure within 2*3 steps it advances

	// run enough steps that at CPU rate it would have wrapped many times,
	// but at CPU/2 with timerCounter reload of 2 it should advance exactly
	// once every (2+1)*2 = 6 CPU cycles from the initial state.
	for i := 0; i < 5; i++ {
		a.Step()
	}
	if a.pulse1.sequencerPos == startPos {
		t.Error("expected pulse sequencer to have advanced within 6 CPU cycles")
	}
}

func TestTriangleTimerClocksEveryCPUCycle(t *testing.T) {
	a := New()
	a.WriteRegister(0x4015, 0x04) // enable triangle
	a.WriteRegister(0x400A, 0x01) // timer low = 1
	a.WriteRegister(0x400B, 0x00) // timer high = 0, reload linear+length=table[0]

	// force length/linear nonzero so the sequencer advances
	a.triangle.lengthCounter = 10
	a.triangle.linearCounter = 10

	startPos := a.triangle.sequencerPos
	a.Step()
	a.Step()
	a.Step()
	if a.triangle.sequencerPos == startPos {
		t.Error("expected triangle sequencer to advance within 3 CPU cycles (no half-rate gating)")
	}
}

func TestSweepMutesWhenTargetExceeds0x7FF(t *testing.T) {
	p := &PulseChannel{timer: 0x700, sweepEnable: true, sweepShift: 1, sweepCounter: 0}
	a := New()
	a.clockPulseSweep(p, false)
	// target = 0x700 + 0x380 = 0xA80 > 0x7FF -> muted, timer unchanged
	if p.timer != 0x700 {
		t.Errorf("expected timer unchanged when sweep target overflows, got 0x%X", p.timer)
	}
}

func TestSweepPulse1UsesOnesComplementNegate(t *testing.T) {
	p := &PulseChannel{timer: 0x100, sweepEnable: true, sweepNegate: true, sweepShift: 1, sweepCounter: 0}
	a := New()
	a.clockPulseSweep(p, true)
	// changeAmount = 0x80; pulse1 target = 0x100 - 0x80 - 1 = 0x7F
	if p.timer != 0x7F {
		t.Errorf("expected pulse1 ones'-complement target 0x7F, got 0x%X", p.timer)
	}
}

func TestSweepPulse2UsesTwosComplementNegate(t *testing.T) {
	p := &PulseChannel{timer: 0x100, sweepEnable: true, sweepNegate: true, sweepShift: 1, sweepCounter: 0}
	a := New()
	a.clockPulseSweep(p, false)
	// changeAmount = 0x80; pulse2 target = 0x100 - 0x80 = 0x80
	if p.timer != 0x80 {
		t.Errorf("expected pulse2 two's-complement target 0x80, got 0x%X", p.timer)
	}
}

func TestFrameCounterSetsIRQInFourStepModeUnlessInhibited(t *testing.T) {
	a := New()
	a.WriteRegister(0x4017, 0x00) // 4-step, IRQ not inhibited

	for i := 0; i < 29830; i++ {
		a.Step()
	}
	if !a.frameIRQFlag {
		t.Error("expected frame IRQ flag set after 29830 cycles in 4-step mode")
	}
}

func TestFrameCounterFiveStepModeNeverSetsIRQ(t *testing.T) {
	a := New()
	a.WriteRegister(0x4017, 0x80) // 5-step mode

	for i := 0; i < 40000; i++ {
		a.Step()
	}
	if a.frameIRQFlag {
		t.Error("expected no frame IRQ in 5-step mode")
	}
}

func TestReadStatusClearsFrameIRQButNotDMCIRQ(t *testing.T) {
	a := New()
	a.frameIRQFlag = true
	a.dmc.irqFlag = true

	status := a.ReadStatus()
	if status&0x40 == 0 || status&0x80 == 0 {
		t.Fatal("expected both IRQ bits reported before clearing")
	}
	if a.frameIRQFlag {
		t.Error("expected frame IRQ flag cleared by $4015 read")
	}
	if !a.dmc.irqFlag {
		t.Error("expected DMC IRQ flag untouched by $4015 read")
	}
}

func TestIRQPendingIsNonDestructive(t *testing.T) {
	a := New()
	a.frameIRQFlag = true
	if !a.IRQPending() {
		t.Fatal("expected IRQPending true")
	}
	if !a.frameIRQFlag {
		t.Error("expected IRQPending to leave frameIRQFlag untouched")
	}
}

func TestDMCFetchesSampleBytesThroughCallback(t *testing.T) {
	a := New()
	memory := map[uint16]uint8{0xC000: 0xAA}
	a.SetReadSampleByte(func(addr uint16) uint8 { return memory[addr] })

	a.WriteRegister(0x4010, 0x00) // rate index 0, no loop, no irq
	a.WriteRegister(0x4012, 0x00) // sample address = 0xC000
	a.WriteRegister(0x4013, 0x00) // sample length = 1
	a.WriteRegister(0x4015, 0x10) // enable DMC: loads currentAddress/bytesRemaining

	if a.dmc.currentAddress != 0xC000 || a.dmc.bytesRemaining != 1 {
		t.Fatalf("expected DMC primed at 0xC000 with 1 byte, got addr=0x%04X remaining=%d",
			a.dmc.currentAddress, a.dmc.bytesRemaining)
	}

	for i := 0; i < int(dmcRateTable[0])+1; i++ {
		a.Step()
	}

	if a.dmc.sampleBuffer == 0 && a.dmc.sampleBufferBits != 0 {
		// buffer may have shifted already; just confirm bytesRemaining drained
	}
	if a.dmc.bytesRemaining != 0 {
		t.Errorf("expected DMC to have consumed its single sample byte, bytesRemaining=%d", a.dmc.bytesRemaining)
	}
}

func TestDMCCurrentAddressWrapsFrom0xFFFF(t *testing.T) {
	a := New()
	a.dmc.currentAddress = 0xFFFF
	a.dmc.bytesRemaining = 2
	a.SetReadSampleByte(func(addr uint16) uint8 { return 0 })

	a.fetchDMCByte(&a.dmc)
	if a.dmc.currentAddress != 0x8000 {
		t.Errorf("expected currentAddress to wrap to 0x8000, got 0x%04X", a.dmc.currentAddress)
	}
}

func TestDMCLoopReloadsFromSampleAddress(t *testing.T) {
	a := New()
	a.dmc.loop = true
	a.dmc.sampleAddress = 0xC400
	a.dmc.sampleLength = 5
	a.dmc.currentAddress = 0xC404
	a.dmc.bytesRemaining = 1
	a.SetReadSampleByte(func(addr uint16) uint8 { return 0 })

	a.fetchDMCByte(&a.dmc)
	if a.dmc.currentAddress != 0xC400 || a.dmc.bytesRemaining != 5 {
		t.Errorf("expected loop reload to 0xC400/5, got 0x%04X/%d", a.dmc.currentAddress, a.dmc.bytesRemaining)
	}
}

func TestDMCSetsIRQOnExhaustionWithoutLoop(t *testing.T) {
	a := New()
	a.dmc.loop = false
	a.dmc.irqEnable = true
	a.dmc.currentAddress = 0xC000
	a.dmc.bytesRemaining = 1
	a.SetReadSampleByte(func(addr uint16) uint8 { return 0 })

	a.fetchDMCByte(&a.dmc)
	if !a.dmc.irqFlag {
		t.Error("expected DMC IRQ flag set when sample exhausted without loop")
	}
}

func TestMixerAppliesNonLinearTablesWithoutRescale(t *testing.T) {
	a := New()
	// all channels silent: mixer must return exactly 0, not a rescaled -1.0
	sample := a.mixChannels(0, 0, 0, 0, 0)
	if sample != 0 {
		t.Errorf("expected silent mix to be exactly 0, got %v", sample)
	}

	sample = a.mixChannels(15, 15, 0, 0, 0)
	expected := float32(95.88 / (8128.0/30.0 + 100.0))
	if sample < expected-0.0001 || sample > expected+0.0001 {
		t.Errorf("expected pulse-only mix near %v, got %v", expected, sample)
	}
}

func TestRingBufferDrainReturnsFIFOOrderAndResets(t *testing.T) {
	a := New()
	a.pushSample(0.1)
	a.pushSample(0.2)
	a.pushSample(0.3)

	dst := make([]float32, 2)
	n := a.DrainBuffer(dst)
	if n != 2 || dst[0] != 0.1 || dst[1] != 0.2 {
		t.Errorf("expected first drain to return [0.1 0.2], got %v (n=%d)", dst, n)
	}

	dst2 := make([]float32, 4)
	n2 := a.DrainBuffer(dst2)
	if n2 != 1 || dst2[0] != 0.3 {
		t.Errorf("expected second drain to return the remaining [0.3], got %v (n=%d)", dst2[:n2], n2)
	}

	n3 := a.DrainBuffer(dst2)
	if n3 != 0 {
		t.Errorf("expected drained ring to report 0 on an empty drain, got %d", n3)
	}
}

func TestRingBufferCapsAt1024AndDropsOldest(t *testing.T) {
	a := New()
	for i := 0; i < ringCapacity+10; i++ {
		a.pushSample(float32(i))
	}
	if a.ringCount != ringCapacity {
		t.Fatalf("expected ring to cap at %d entries, got %d", ringCapacity, a.ringCount)
	}

	dst := make([]float32, 1)
	a.DrainBuffer(dst)
	if dst[0] != 10 {
		t.Errorf("expected oldest surviving sample to be 10 (first 10 dropped), got %v", dst[0])
	}
}

func TestNoiseOutputSilentWhenShiftBit0Set(t *testing.T) {
	n := &NoiseChannel{lengthCounter: 5, shiftRegister: 0x0001, volume: 10, envelopeDisable: true}
	a := New()
	if out := a.getNoiseOutput(n); out != 0 {
		t.Errorf("expected 0 output when LFSR bit 0 is set, got %d", out)
	}
}

func TestWriteFrameCounterInFiveStepModeClocksImmediately(t *testing.T) {
	a := New()
	a.WriteRegister(0x4015, 0x01)
	a.WriteRegister(0x4003, 0xF8) // load a length counter

	before := a.pulse1.lengthCounter
	a.WriteRegister(0x4017, 0x80) // 5-step mode write clocks length/sweep immediately
	if a.pulse1.lengthCounter != before-1 {
		t.Errorf("expected immediate length clock on 5-step mode write, got %d want %d",
			a.pulse1.lengthCounter, before-1)
	}
}
