package insts

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Decode decodes a 32-bit instruction word into an OP.
// It returns ErrInvalidOP for any word outside the supported subset.
func Decode(word uint32) (OP, error) {
	var o OP

	op := word >> 26 // bits [31:26]
	if (op >= 17 && op <= 31) ||
		op == 34 || op == 38 || op == 39 || op == 42 ||
		op >= 44 {
		return o, ErrInvalidOP
	}
	o.Opcode = Opcode(op)

	switch o.Opcode {
	case OpSPECIAL: // R-type
		o.RS = uint8((word >> 21) & 0x1f)
		o.RT = uint8((word >> 16) & 0x1f)
		o.RD = uint8((word >> 11) & 0x1f)
		o.Shamt = uint8((word >> 6) & 0x1f)
		f := word & 0x3f
		if f == 1 || f == 5 || f == 10 || f == 11 ||
			(f >= 13 && f <= 15) ||
			(f >= 20 && f <= 23) ||
			(f >= 28 && f <= 31) ||
			f == 40 || f == 41 ||
			f >= 44 {
			return OP{}, ErrInvalidOP
		}
		o.Funct = Funct(f)
	case OpJ, OpJAL: // J-type
		o.Addr = word & 0x3ffffff
	default: // I-type
		o.RS = uint8((word >> 21) & 0x1f)
		o.RT = uint8((word >> 16) & 0x1f)
		o.Imm = uint16(word & 0xffff)
	}

	return o, nil
}

// Encode produces the instruction word for o. It is the inverse of
// Decode: for every word accepted by Decode, Encode(Decode(w)) == w.
func (o OP) Encode() uint32 {
	op := uint32(o.Opcode)
	switch o.Opcode {
	case OpSPECIAL: // R-type
		return (uint32(o.RS&0x1f) << 21) |
			(uint32(o.RT&0x1f) << 16) |
			(uint32(o.RD&0x1f) << 11) |
			(uint32(o.Shamt&0x1f) << 6) |
			uint32(o.Funct&0x3f)
	case OpJ, OpJAL: // J-type
		return (op << 26) | (o.Addr & 0x3ffffff)
	default: // I-type
		return (op << 26) |
			(uint32(o.RS&0x1f) << 21) |
			(uint32(o.RT&0x1f) << 16) |
			uint32(o.Imm)
	}
}

// Disassemble returns the canonical assembler form of o. The addr
// parameter is the address of the instruction itself; it resolves the
// absolute target of J and JAL.
func (o OP) Disassemble(addr uint32) string {
	m, operands := o.mnemonic(addr)
	if operands == "" {
		return m
	}
	return fmt.Sprintf("%-8s%s", m, operands)
}

func (o OP) mnemonic(addr uint32) (string, string) {
	switch o.Opcode {
	case OpSPECIAL:
		return o.specialMnemonic()
	case OpREGIMM:
		var m string
		switch o.RT {
		case RegimmBLTZ:
			m = "bltz"
		case RegimmBGEZ:
			m = "bgez"
		case RegimmBLTZAL:
			m = "bltzal"
		case RegimmBGEZAL:
			m = "bgezal"
		default:
			return ".word", fmt.Sprintf("0x%08x", o.Encode())
		}
		return m, fmt.Sprintf("%s, %d", RegName(o.RS), o.SImm())
	case OpJ:
		return "j", fmt.Sprintf("0x%08x", ((addr+4)&0xf0000000)|(o.Addr<<2))
	case OpJAL:
		return "jal", fmt.Sprintf("0x%08x", ((addr+4)&0xf0000000)|(o.Addr<<2))
	case OpBEQ:
		return "beq", fmt.Sprintf("%s, %s, %d", RegName(o.RS), RegName(o.RT), o.SImm())
	case OpBNE:
		return "bne", fmt.Sprintf("%s, %s, %d", RegName(o.RS), RegName(o.RT), o.SImm())
	case OpBLEZ:
		return "blez", fmt.Sprintf("%s, %d", RegName(o.RS), o.SImm())
	case OpBGTZ:
		return "bgtz", fmt.Sprintf("%s, %d", RegName(o.RS), o.SImm())
	case OpADDI:
		return "addi", fmt.Sprintf("%s, %s, %d", RegName(o.RT), RegName(o.RS), o.SImm())
	case OpADDIU:
		return "addiu", fmt.Sprintf("%s, %s, %d", RegName(o.RT), RegName(o.RS), o.SImm())
	case OpSLTI:
		return "slti", fmt.Sprintf("%s, %s, %d", RegName(o.RT), RegName(o.RS), o.SImm())
	case OpSLTIU:
		return "sltiu", fmt.Sprintf("%s, %s, %d", RegName(o.RT), RegName(o.RS), o.SImm())
	case OpANDI:
		return "andi", fmt.Sprintf("%s, %s, 0x%x", RegName(o.RT), RegName(o.RS), o.Imm)
	case OpORI:
		return "ori", fmt.Sprintf("%s, %s, 0x%x", RegName(o.RT), RegName(o.RS), o.Imm)
	case OpXORI:
		return "xori", fmt.Sprintf("%s, %s, 0x%x", RegName(o.RT), RegName(o.RS), o.Imm)
	case OpLUI:
		return "lui", fmt.Sprintf("%s, 0x%x", RegName(o.RT), o.Imm)
	case OpMTC0:
		return "mtc0", fmt.Sprintf("%s, %s", RegName(o.RT), RegName(o.RS))
	case OpLB:
		return "lb", o.memOperands()
	case OpLH:
		return "lh", o.memOperands()
	case OpLW:
		return "lw", o.memOperands()
	case OpLBU:
		return "lbu", o.memOperands()
	case OpLHU:
		return "lhu", o.memOperands()
	case OpSB:
		return "sb", o.memOperands()
	case OpSH:
		return "sh", o.memOperands()
	case OpSW:
		return "sw", o.memOperands()
	}
	return ".word", fmt.Sprintf("0x%08x", o.Encode())
}

func (o OP) memOperands() string {
	return fmt.Sprintf("%s, %d(%s)", RegName(o.RT), o.SImm(), RegName(o.RS))
}

func (o OP) specialMnemonic() (string, string) {
	rd, rs, rt := RegName(o.RD), RegName(o.RS), RegName(o.RT)
	switch o.Funct {
	case FnSLL:
		if o.RD == 0 && o.RT == 0 && o.Shamt == 0 {
			return "nop", ""
		}
		return "sll", fmt.Sprintf("%s, %s, %d", rd, rt, o.Shamt)
	case FnSRL:
		return "srl", fmt.Sprintf("%s, %s, %d", rd, rt, o.Shamt)
	case FnSRA:
		return "sra", fmt.Sprintf("%s, %s, %d", rd, rt, o.Shamt)
	case FnSLLV:
		return "sllv", fmt.Sprintf("%s, %s, %s", rd, rt, rs)
	case FnSRLV:
		return "srlv", fmt.Sprintf("%s, %s, %s", rd, rt, rs)
	case FnSRAV:
		return "srav", fmt.Sprintf("%s, %s, %s", rd, rt, rs)
	case FnJR:
		return "jr", rs
	case FnJALR:
		return "jalr", fmt.Sprintf("%s, %s", rd, rs)
	case FnSYSCALL:
		return "syscall", ""
	case FnMFHI:
		return "mfhi", rd
	case FnMTHI:
		return "mthi", rs
	case FnMFLO:
		return "mflo", rd
	case FnMTLO:
		return "mtlo", rs
	case FnMULT:
		return "mult", fmt.Sprintf("%s, %s", rs, rt)
	case FnMULTU:
		return "multu", fmt.Sprintf("%s, %s", rs, rt)
	case FnDIV:
		return "div", fmt.Sprintf("%s, %s", rs, rt)
	case FnDIVU:
		return "divu", fmt.Sprintf("%s, %s", rs, rt)
	case FnADD:
		return "add", fmt.Sprintf("%s, %s, %s", rd, rs, rt)
	case FnADDU:
		return "addu", fmt.Sprintf("%s, %s, %s", rd, rs, rt)
	case FnSUB:
		return "sub", fmt.Sprintf("%s, %s, %s", rd, rs, rt)
	case FnSUBU:
		return "subu", fmt.Sprintf("%s, %s, %s", rd, rs, rt)
	case FnAND:
		return "and", fmt.Sprintf("%s, %s, %s", rd, rs, rt)
	case FnOR:
		return "or", fmt.Sprintf("%s, %s, %s", rd, rs, rt)
	case FnXOR:
		return "xor", fmt.Sprintf("%s, %s, %s", rd, rs, rt)
	case FnNOR:
		return "nor", fmt.Sprintf("%s, %s, %s", rd, rs, rt)
	case FnSLT:
		return "slt", fmt.Sprintf("%s, %s, %s", rd, rs, rt)
	case FnSLTU:
		return "sltu", fmt.Sprintf("%s, %s, %s", rd, rs, rt)
	}
	return ".word", fmt.Sprintf("0x%08x", o.Encode())
}

// Disassemble writes one line per instruction in data, which holds
// big-endian words starting at address base.
func Disassemble(data []byte, base uint32, w io.Writer) error {
	for i := 0; i+4 <= len(data); i += 4 {
		addr := base + uint32(i)
		word := binary.BigEndian.Uint32(data[i:])
		op, err := Decode(word)
		if err != nil {
			return fmt.Errorf("at 0x%08x: %w", addr, err)
		}
		if _, err := fmt.Fprintf(w, "%08x:  %08x  %s\n", addr, word, op.Disassemble(addr)); err != nil {
			return err
		}
	}
	return nil
}
