package emu

import (
	"fmt"

	"github.com/p2k/solomips/insts"
)

// HaltError reports clean termination: the program jumped to address 0.
type HaltError struct{}

func (HaltError) Error() string {
	return "program halted"
}

// MisalignedPCError reports a fetch from a non-word-aligned address.
type MisalignedPCError struct {
	PC uint32
}

func (e *MisalignedPCError) Error() string {
	return fmt.Sprintf("misaligned program counter at 0x%08x", e.PC)
}

// InvalidOPError reports execution of a word outside the supported
// instruction subset.
type InvalidOPError struct {
	PC uint32
}

func (e *InvalidOPError) Error() string {
	return fmt.Sprintf("invalid instruction at 0x%08x", e.PC)
}

func (e *InvalidOPError) Unwrap() error {
	return insts.ErrInvalidOP
}

// MemoryFaultError reports a memory access the fabric refused.
type MemoryFaultError struct {
	PC  uint32
	Msg string
}

func (e *MemoryFaultError) Error() string {
	return fmt.Sprintf("memory exception at 0x%08x: %s", e.PC, e.Msg)
}

// ArithmeticError reports an arithmetic fault such as division by zero.
type ArithmeticError struct {
	PC  uint32
	Msg string
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic exception at 0x%08x: %s", e.PC, e.Msg)
}

// loadDelay is the one-cycle load-delay record.
type loadDelay struct {
	opcode insts.Opcode // OpSPECIAL when empty
	target uint8
	addr   uint32
}

// R3000 emulates a MIPS R2000/R3000 processor at the architectural
// level. The registers, PC, pipeline and delayed exception are exported
// and can be manipulated between steps, with obvious consequences; the
// load-delay record is not exported.
//
// Jumping to address 0 halts the processor.
type R3000 struct {
	// R holds the 32 general registers. R[0] is forced to zero at the
	// end of every cycle. SR gives the signed view of the same storage.
	R  [32]uint32
	HI uint32
	LO uint32
	PC uint32

	RAM   *RAM
	Entry uint32

	// Op is the instruction currently executing; NextOp the one already
	// fetched into the branch-delay slot.
	Op     insts.OP
	NextOp insts.OP

	// Pending is the delayed exception latched during prefetch, raised
	// at the top of the following cycle.
	Pending error

	dl loadDelay

	// FetchHook, LoadHook and StoreHook observe memory traffic for the
	// statistics mode. Nil hooks add no behavior.
	FetchHook func(addr uint32)
	LoadHook  func(addr uint32, size uint32)
	StoreHook func(addr uint32, size uint32)
}

// NewR3000 creates a CPU with an empty mapper chain and resets it.
func NewR3000(entry uint32) *R3000 {
	cpu := &R3000{
		RAM:   NewRAM(),
		Entry: entry,
	}
	cpu.Reset()
	return cpu
}

// SR returns the signed view of register i.
func (c *R3000) SR(i uint8) int32 {
	return int32(c.R[i])
}

// SetSR writes register i through the signed view.
func (c *R3000) SetSR(i uint8, v int32) {
	c.R[i] = uint32(v)
}

// Reset zeroes all registers and HI/LO, loads the pipeline with NOPs,
// sets PC to the entry point and clears the load-delay record and any
// delayed exception. Memory contents are left untouched.
func (c *R3000) Reset() {
	c.R = [32]uint32{}
	c.HI = 0
	c.LO = 0
	c.Op = insts.OP{}
	c.NextOp = insts.OP{}
	c.PC = c.Entry
	c.dl = loadDelay{}
	c.Pending = nil
}

// Step performs one CPU cycle: raise any delayed exception, retire the
// fetch, prefetch the next instruction, execute, retire a pending
// delayed load, clear the zero register and schedule a new delayed
// load.
func (c *R3000) Step() error {
	if c.Pending != nil {
		return c.Pending
	}

	// Retire fetch
	c.Op = c.NextOp

	// Prefetch next; a failure is latched and raised one cycle later so
	// the branch-delay slot of the jump that caused it still retires.
	// PC is left at the fetch target when a latch occurs.
	if c.PC&0x3 != 0 {
		c.Pending = &MisalignedPCError{PC: c.PC}
	} else if c.PC == 0 {
		c.Pending = HaltError{}
	} else {
		word, err := c.RAM.LoadInstructionWord(c.PC)
		if err != nil {
			c.Pending = &MemoryFaultError{PC: c.PC, Msg: err.Error()}
		} else if op, derr := insts.Decode(word); derr != nil {
			c.Pending = &InvalidOPError{PC: c.PC}
		} else {
			c.NextOp = op
			if c.FetchHook != nil {
				c.FetchHook(c.PC)
			}
			c.PC += 4
		}
	}

	// Run instruction
	if err := c.execute(); err != nil {
		return err
	}

	// Perform delayed load
	if err := c.retireLoad(); err != nil {
		return err
	}

	// Always clear zero register
	c.R[0] = 0

	// Prepare next delayed load
	if c.Op.IsLoad() {
		c.dl = loadDelay{
			opcode: c.Op.Opcode,
			target: c.Op.RT,
			addr:   uint32(int32(c.Op.SImm())) + c.R[c.Op.RS],
		}
	}

	return nil
}

// Run repeatedly calls Step until the program halts. Faults other than
// the halt are returned.
func (c *R3000) Run() error {
	for {
		if err := c.Step(); err != nil {
			if _, halted := err.(HaltError); halted {
				return nil
			}
			return err
		}
	}
}

// faultPC is PC minus the two prefetch advances. It is the address of
// the instruction currently executing when that instruction was reached
// sequentially and this cycle's prefetch succeeded; in a branch-delay
// slot, or after this cycle's prefetch latched an exception, it is not.
func (c *R3000) faultPC() uint32 {
	return c.PC - 8
}

func (c *R3000) memFault(err error) error {
	return &MemoryFaultError{PC: c.faultPC(), Msg: err.Error()}
}

func (c *R3000) execute() error {
	op := &c.Op

	switch op.Opcode {
	case insts.OpSPECIAL:
		return c.executeSpecial(op)
	case insts.OpREGIMM:
		return c.executeRegimm(op)
	case insts.OpJAL:
		c.R[31] = c.PC
		c.PC = (c.PC & 0xf0000000) | (op.Addr << 2)
	case insts.OpJ:
		c.PC = (c.PC & 0xf0000000) | (op.Addr << 2)
	case insts.OpBEQ:
		if c.R[op.RS] == c.R[op.RT] {
			c.branch(op)
		}
	case insts.OpBNE:
		if c.R[op.RS] != c.R[op.RT] {
			c.branch(op)
		}
	case insts.OpBLEZ:
		if c.SR(op.RS) <= 0 {
			c.branch(op)
		}
	case insts.OpBGTZ:
		if c.SR(op.RS) > 0 {
			c.branch(op)
		}
	case insts.OpADDI:
		c.SetSR(op.RT, c.SR(op.RS)+int32(op.SImm()))
	case insts.OpADDIU:
		c.R[op.RT] = c.R[op.RS] + uint32(op.Imm)
	case insts.OpSLTI:
		c.R[op.RT] = boolToReg(c.SR(op.RS) < int32(op.SImm()))
	case insts.OpSLTIU:
		c.R[op.RT] = boolToReg(c.R[op.RS] < uint32(op.Imm))
	case insts.OpANDI:
		c.R[op.RT] = c.R[op.RS] & uint32(op.Imm)
	case insts.OpORI:
		c.R[op.RT] = c.R[op.RS] | uint32(op.Imm)
	case insts.OpXORI:
		c.R[op.RT] = c.R[op.RS] ^ uint32(op.Imm)
	case insts.OpLUI:
		c.R[op.RT] = uint32(op.Imm) << 16
	case insts.OpMTC0:
		// Coprocessor 0 is not modelled
	case insts.OpLB, insts.OpLH, insts.OpLW, insts.OpLBU, insts.OpLHU:
		// Delayed
	case insts.OpSB:
		addr := c.effectiveAddr(op)
		if c.StoreHook != nil {
			c.StoreHook(addr, 1)
		}
		if err := c.RAM.StoreByte(addr, uint8(c.R[op.RT])); err != nil {
			return c.memFault(err)
		}
	case insts.OpSH:
		addr := c.effectiveAddr(op)
		if c.StoreHook != nil {
			c.StoreHook(addr, 2)
		}
		if err := c.RAM.StoreHalfWord(addr, uint16(c.R[op.RT])); err != nil {
			return c.memFault(err)
		}
	case insts.OpSW:
		addr := c.effectiveAddr(op)
		if c.StoreHook != nil {
			c.StoreHook(addr, 4)
		}
		if err := c.RAM.StoreWord(addr, c.R[op.RT]); err != nil {
			return c.memFault(err)
		}
	}

	return nil
}

func (c *R3000) executeSpecial(op *insts.OP) error {
	switch op.Funct {
	case insts.FnSLL:
		c.R[op.RD] = c.R[op.RT] << op.Shamt
	case insts.FnSRL:
		c.R[op.RD] = c.R[op.RT] >> op.Shamt
	case insts.FnSRA:
		c.SetSR(op.RD, c.SR(op.RT)>>op.Shamt)
	case insts.FnSLLV:
		c.R[op.RD] = c.R[op.RT] << (c.R[op.RS] & 0x1f)
	case insts.FnSRLV:
		c.R[op.RD] = c.R[op.RT] >> (c.R[op.RS] & 0x1f)
	case insts.FnSRAV:
		c.SetSR(op.RD, c.SR(op.RT)>>(c.R[op.RS]&0x1f))
	case insts.FnJALR:
		target := c.R[op.RS]
		c.R[op.RD] = c.PC
		c.PC = target
	case insts.FnJR:
		c.PC = c.R[op.RS]
	case insts.FnSYSCALL:
		return &InvalidOPError{PC: c.faultPC()}
	case insts.FnMFHI:
		c.R[op.RD] = c.HI
	case insts.FnMTHI:
		c.HI = c.R[op.RS]
	case insts.FnMFLO:
		c.R[op.RD] = c.LO
	case insts.FnMTLO:
		c.LO = c.R[op.RS]
	case insts.FnMULT:
		prod := int64(c.SR(op.RS)) * int64(c.SR(op.RT))
		c.HI = uint32(uint64(prod) >> 32)
		c.LO = uint32(uint64(prod))
	case insts.FnMULTU:
		prod := uint64(c.R[op.RS]) * uint64(c.R[op.RT])
		c.HI = uint32(prod >> 32)
		c.LO = uint32(prod)
	case insts.FnDIV:
		if c.SR(op.RT) == 0 {
			return &ArithmeticError{PC: c.faultPC(), Msg: "Divided by zero"}
		}
		c.HI = uint32(c.SR(op.RS) % c.SR(op.RT))
		c.LO = uint32(c.SR(op.RS) / c.SR(op.RT))
	case insts.FnDIVU:
		if c.R[op.RT] == 0 {
			return &ArithmeticError{PC: c.faultPC(), Msg: "Divided by zero"}
		}
		c.HI = c.R[op.RS] % c.R[op.RT]
		c.LO = c.R[op.RS] / c.R[op.RT]
	case insts.FnADD:
		c.SetSR(op.RD, c.SR(op.RS)+c.SR(op.RT))
	case insts.FnADDU:
		c.R[op.RD] = c.R[op.RS] + c.R[op.RT]
	case insts.FnSUB:
		c.SetSR(op.RD, c.SR(op.RS)-c.SR(op.RT))
	case insts.FnSUBU:
		c.R[op.RD] = c.R[op.RS] - c.R[op.RT]
	case insts.FnAND:
		c.R[op.RD] = c.R[op.RS] & c.R[op.RT]
	case insts.FnOR:
		c.R[op.RD] = c.R[op.RS] | c.R[op.RT]
	case insts.FnXOR:
		c.R[op.RD] = c.R[op.RS] ^ c.R[op.RT]
	case insts.FnNOR:
		c.R[op.RD] = ^(c.R[op.RS] | c.R[op.RT])
	case insts.FnSLT:
		c.R[op.RD] = boolToReg(c.SR(op.RS) < c.SR(op.RT))
	case insts.FnSLTU:
		c.R[op.RD] = boolToReg(c.R[op.RS] < c.R[op.RT])
	}
	return nil
}

func (c *R3000) executeRegimm(op *insts.OP) error {
	switch op.RT {
	case insts.RegimmBLTZAL:
		c.R[31] = c.PC
		fallthrough
	case insts.RegimmBLTZ:
		if c.SR(op.RS) < 0 {
			c.branch(op)
		}
	case insts.RegimmBGEZAL:
		c.R[31] = c.PC
		fallthrough
	case insts.RegimmBGEZ:
		if c.SR(op.RS) >= 0 {
			c.branch(op)
		}
	default:
		return &InvalidOPError{PC: c.faultPC()}
	}
	return nil
}

// branch applies a taken branch: the target is the address of the delay
// slot plus the shifted offset. PC is delay-slot+4 at this point.
func (c *R3000) branch(op *insts.OP) {
	c.PC = c.PC - 4 + uint32(int32(op.SImm())<<2)
}

func (c *R3000) effectiveAddr(op *insts.OP) uint32 {
	return uint32(int32(op.SImm())) + c.R[op.RS]
}

func (c *R3000) retireLoad() error {
	if c.dl.opcode == insts.OpSPECIAL {
		return nil
	}
	opcode, target, addr := c.dl.opcode, c.dl.target, c.dl.addr
	c.dl = loadDelay{}

	switch opcode {
	case insts.OpLB:
		if c.LoadHook != nil {
			c.LoadHook(addr, 1)
		}
		b, err := c.RAM.LoadByte(addr)
		if err != nil {
			return c.memFault(err)
		}
		c.SetSR(target, int32(int8(b)))
	case insts.OpLH:
		if c.LoadHook != nil {
			c.LoadHook(addr, 2)
		}
		h, err := c.RAM.LoadHalfWord(addr)
		if err != nil {
			return c.memFault(err)
		}
		c.SetSR(target, int32(int16(h)))
	case insts.OpLW:
		if c.LoadHook != nil {
			c.LoadHook(addr, 4)
		}
		w, err := c.RAM.LoadWord(addr)
		if err != nil {
			return c.memFault(err)
		}
		c.R[target] = w
	case insts.OpLBU:
		if c.LoadHook != nil {
			c.LoadHook(addr, 1)
		}
		b, err := c.RAM.LoadByte(addr)
		if err != nil {
			return c.memFault(err)
		}
		c.R[target] = uint32(b)
	case insts.OpLHU:
		if c.LoadHook != nil {
			c.LoadHook(addr, 2)
		}
		h, err := c.RAM.LoadHalfWord(addr)
		if err != nil {
			return c.memFault(err)
		}
		c.R[target] = uint32(h)
	}
	return nil
}

func boolToReg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
