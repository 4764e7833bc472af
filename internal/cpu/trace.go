package cpu

import (
	"fmt"
	"strings"
)

// TraceContext supplies the PPU/cycle fields the trace line embeds but that
// the CPU itself has no business tracking.
type TraceContext struct {
	PPUScanline int
	PPUDot      int
	Cycles      uint64
}

// Trace formats the instruction about to execute (PC still points at its
// opcode byte) in the nestest log layout:
//
//	PC  B1 B2 B3  [*]MNEMONIC OPERAND            A:xx X:xx Y:xx P:xx SP:xx PPU:sl,dot CYC:n
//
// Operand decoding reads through the same MemoryInterface Step uses. For
// ROM-resident code this has no observable side effects; a harness tracing
// across live PPU/APU register addresses should supply a memory view with
// read side effects suppressed.
func (cpu *CPU) Trace(ctx TraceContext) string {
	pc := cpu.PC
	opcode := cpu.memory.Read(pc)
	instruction := cpu.instructions[opcode]

	var bytesStr, operandStr string
	mnemonic := "???"
	illegal := false

	if instruction != nil {
		mnemonic = instruction.Name
		illegal = instruction.Illegal
		raw := make([]uint8, instruction.Bytes)
		raw[0] = opcode
		for i := uint8(1); i < instruction.Bytes; i++ {
			raw[i] = cpu.memory.Read(pc + uint16(i))
		}
		bytesStr = formatBytes(raw)
		operandStr = cpu.formatOperand(instruction, pc)
	} else {
		bytesStr = formatBytes([]uint8{opcode})
	}

	namePrefix := " "
	if illegal {
		namePrefix = "*"
	}

	disasm := fmt.Sprintf("%s%s %s", namePrefix, mnemonic, operandStr)
	disasm = padTo(disasm, 32)

	return fmt.Sprintf("%04X  %-9s %s A:%02X X:%02X Y:%02X P:%02X SP:%02X PPU:%3d,%3d CYC:%d",
		pc, bytesStr, disasm, cpu.A, cpu.X, cpu.Y, cpu.GetStatusByte(), cpu.SP,
		ctx.PPUScanline, ctx.PPUDot, ctx.Cycles)
}

func formatBytes(raw []uint8) string {
	parts := make([]string, len(raw))
	for i, b := range raw {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

func padTo(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatOperand decodes the operand text for one instruction without
// mutating CPU state (it replays the same address arithmetic
// getOperandAddress uses, but never advances PC or touches flags).
func (cpu *CPU) formatOperand(instruction *Instruction, pc uint16) string {
	read := cpu.memory.Read
	switch instruction.Mode {
	case Implied:
		return ""
	case Accumulator:
		return "A"
	case Immediate:
		return fmt.Sprintf("#$%02X", read(pc+1))
	case ZeroPage:
		addr := uint16(read(pc + 1))
		return fmt.Sprintf("$%02X = %02X", addr, read(addr))
	case ZeroPageX:
		base := read(pc + 1)
		eff := uint16((base + cpu.X) & zeroPageMask)
		return fmt.Sprintf("$%02X,X @ %02X = %02X", base, eff, read(eff))
	case ZeroPageY:
		base := read(pc + 1)
		eff := uint16((base + cpu.Y) & zeroPageMask)
		return fmt.Sprintf("$%02X,Y @ %02X = %02X", base, eff, read(eff))
	case Relative:
		offset := int8(read(pc + 1))
		target := uint16(int32(pc+2) + int32(offset))
		return fmt.Sprintf("$%04X", target)
	case Absolute:
		addr := uint16(read(pc+1)) | uint16(read(pc+2))<<8
		if instruction.Name == "JMP" || instruction.Name == "JSR" {
			return fmt.Sprintf("$%04X", addr)
		}
		return fmt.Sprintf("$%04X = %02X", addr, read(addr))
	case AbsoluteX:
		base := uint16(read(pc+1)) | uint16(read(pc+2))<<8
		eff := base + uint16(cpu.X)
		return fmt.Sprintf("$%04X,X @ %04X = %02X", base, eff, read(eff))
	case AbsoluteY:
		base := uint16(read(pc+1)) | uint16(read(pc+2))<<8
		eff := base + uint16(cpu.Y)
		return fmt.Sprintf("$%04X,Y @ %04X = %02X", base, eff, read(eff))
	case Indirect:
		ptr := uint16(read(pc+1)) | uint16(read(pc+2))<<8
		var eff uint16
		if (ptr & zeroPageMask) == zeroPageMask {
			eff = uint16(read(ptr)) | uint16(read(ptr&pageMask))<<8
		} else {
			eff = uint16(read(ptr)) | uint16(read(ptr+1))<<8
		}
		return fmt.Sprintf("($%04X) = %04X", ptr, eff)
	case IndexedIndirect:
		zp := read(pc + 1)
		ptr := (zp + cpu.X) & zeroPageMask
		eff := uint16(read(uint16(ptr))) | uint16(read(uint16((ptr+1)&zeroPageMask)))<<8
		return fmt.Sprintf("($%02X,X) @ %02X = %04X = %02X", zp, ptr, eff, read(eff))
	case IndirectIndexed:
		zp := read(pc + 1)
		base := uint16(read(uint16(zp))) | uint16(read(uint16((zp+1)&zeroPageMask)))<<8
		eff := base + uint16(cpu.Y)
		return fmt.Sprintf("($%02X),Y = %04X @ %04X = %02X", zp, base, eff, read(eff))
	default:
		return ""
	}
}
