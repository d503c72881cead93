package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/p2k/solomips/insts"
)

var _ = Describe("Decode", func() {
	Describe("R-type (SPECIAL)", func() {
		// add $v0, $v0, $v1 -> 0x00431020
		// Encoding: 000000 | rs=2 | rt=3 | rd=2 | shamt=0 | funct=100000
		It("should decode add $v0, $v0, $v1", func() {
			op, err := insts.Decode(0x00431020)

			Expect(err).NotTo(HaveOccurred())
			Expect(op.Opcode).To(Equal(insts.OpSPECIAL))
			Expect(op.Funct).To(Equal(insts.FnADD))
			Expect(op.RS).To(Equal(uint8(2)))
			Expect(op.RT).To(Equal(uint8(3)))
			Expect(op.RD).To(Equal(uint8(2)))
			Expect(op.Shamt).To(Equal(uint8(0)))
		})

		// sll $t0, $t1, 4 -> 0x00094100
		It("should decode sll $t0, $t1, 4", func() {
			op, err := insts.Decode(0x00094100)

			Expect(err).NotTo(HaveOccurred())
			Expect(op.Opcode).To(Equal(insts.OpSPECIAL))
			Expect(op.Funct).To(Equal(insts.FnSLL))
			Expect(op.RT).To(Equal(uint8(9)))
			Expect(op.RD).To(Equal(uint8(8)))
			Expect(op.Shamt).To(Equal(uint8(4)))
		})

		// jr $ra -> 0x03E00008
		It("should decode jr $ra", func() {
			op, err := insts.Decode(0x03E00008)

			Expect(err).NotTo(HaveOccurred())
			Expect(op.Opcode).To(Equal(insts.OpSPECIAL))
			Expect(op.Funct).To(Equal(insts.FnJR))
			Expect(op.RS).To(Equal(uint8(31)))
		})

		// syscall is accepted by the decoder (and rejected at execute)
		It("should decode syscall", func() {
			op, err := insts.Decode(0x0000000C)

			Expect(err).NotTo(HaveOccurred())
			Expect(op.Funct).To(Equal(insts.FnSYSCALL))
		})

		It("should reject unsupported funct values", func() {
			for _, funct := range []uint32{1, 5, 10, 11, 13, 14, 15, 20, 23, 28, 31, 40, 41, 44, 63} {
				_, err := insts.Decode(funct)
				Expect(err).To(MatchError(insts.ErrInvalidOP), "funct %d", funct)
			}
		})
	})

	Describe("REGIMM", func() {
		// bgezal $zero, 3 -> 0x04110003
		It("should decode bgezal $zero, 3", func() {
			op, err := insts.Decode(0x04110003)

			Expect(err).NotTo(HaveOccurred())
			Expect(op.Opcode).To(Equal(insts.OpREGIMM))
			Expect(op.RT).To(Equal(insts.RegimmBGEZAL))
			Expect(op.SImm()).To(Equal(int16(3)))
		})

		// bltz $a0, -2 -> 0x0480FFFE
		It("should decode bltz $a0, -2", func() {
			op, err := insts.Decode(0x0480FFFE)

			Expect(err).NotTo(HaveOccurred())
			Expect(op.Opcode).To(Equal(insts.OpREGIMM))
			Expect(op.RS).To(Equal(uint8(4)))
			Expect(op.RT).To(Equal(insts.RegimmBLTZ))
			Expect(op.SImm()).To(Equal(int16(-2)))
		})
	})

	Describe("J-type", func() {
		// j 0x11000008 (from a PC in 0x1xxxxxxx) -> addr field 0x0400002
		It("should decode j with a 26-bit target", func() {
			op, err := insts.Decode(0x08000000 | 0x0400002)

			Expect(err).NotTo(HaveOccurred())
			Expect(op.Opcode).To(Equal(insts.OpJ))
			Expect(op.Addr).To(Equal(uint32(0x0400002)))
		})

		It("should decode jal", func() {
			op, err := insts.Decode(0x0C000000 | 0x3FFFFFF)

			Expect(err).NotTo(HaveOccurred())
			Expect(op.Opcode).To(Equal(insts.OpJAL))
			Expect(op.Addr).To(Equal(uint32(0x3FFFFFF)))
		})
	})

	Describe("I-type", func() {
		// addiu $v0, $zero, 3 -> 0x24020003
		It("should decode addiu $v0, $zero, 3", func() {
			op, err := insts.Decode(0x24020003)

			Expect(err).NotTo(HaveOccurred())
			Expect(op.Opcode).To(Equal(insts.OpADDIU))
			Expect(op.RS).To(Equal(uint8(0)))
			Expect(op.RT).To(Equal(uint8(2)))
			Expect(op.Imm).To(Equal(uint16(3)))
		})

		// lw $v0, -4($at) -> 0x8C22FFFC
		It("should decode lw with a negative offset", func() {
			op, err := insts.Decode(0x8C22FFFC)

			Expect(err).NotTo(HaveOccurred())
			Expect(op.Opcode).To(Equal(insts.OpLW))
			Expect(op.RS).To(Equal(uint8(1)))
			Expect(op.RT).To(Equal(uint8(2)))
			Expect(op.SImm()).To(Equal(int16(-4)))
			Expect(op.Imm).To(Equal(uint16(0xFFFC)))
		})

		// lui $at, 0x3000 -> 0x3C013000
		It("should decode lui $at, 0x3000", func() {
			op, err := insts.Decode(0x3C013000)

			Expect(err).NotTo(HaveOccurred())
			Expect(op.Opcode).To(Equal(insts.OpLUI))
			Expect(op.RT).To(Equal(uint8(1)))
			Expect(op.Imm).To(Equal(uint16(0x3000)))
		})

		It("should decode mtc0 as an accepted opcode", func() {
			op, err := insts.Decode(0x40046000)

			Expect(err).NotTo(HaveOccurred())
			Expect(op.Opcode).To(Equal(insts.OpMTC0))
		})
	})

	Describe("invalid primary opcodes", func() {
		It("should reject opcodes outside the supported set", func() {
			for _, opcode := range []uint32{17, 18, 24, 31, 34, 38, 39, 42, 44, 50, 63} {
				_, err := insts.Decode(opcode << 26)
				Expect(err).To(MatchError(insts.ErrInvalidOP), "opcode %d", opcode)
			}
		})

		It("should reject 0xFFFFFFFF", func() {
			_, err := insts.Decode(0xFFFFFFFF)
			Expect(err).To(MatchError(insts.ErrInvalidOP))
		})
	})

	Describe("round trip", func() {
		It("should satisfy encode(decode(w)) == w for accepted words", func() {
			words := []uint32{
				0x00431020, // add
				0x00094100, // sll
				0x03E00008, // jr
				0x0000000C, // syscall
				0x00220018, // mult
				0x0022001A, // div
				0x04110003, // bgezal
				0x0480FFFE, // bltz
				0x08000002, // j
				0x0C400004, // jal
				0x1043FFFE, // beq backwards
				0x24020003, // addiu
				0x2C420064, // sltiu
				0x34420F0F, // ori
				0x3C013000, // lui
				0x40046000, // mtc0
				0x8C220004, // lw
				0x80220001, // lb
				0x94220002, // lhu
				0xA0220003, // sb
				0xA4220002, // sh
				0xAC220000, // sw
				0x00000000, // nop
			}
			for _, w := range words {
				op, err := insts.Decode(w)
				Expect(err).NotTo(HaveOccurred(), "word 0x%08x", w)
				Expect(op.Encode()).To(Equal(w), "word 0x%08x", w)
			}
		})

		It("should satisfy encode(decode(w)) == w for every accepted low word", func() {
			// Sweep all SPECIAL words with zero upper fields plus every
			// primary opcode with a fixed operand pattern.
			for w := uint32(0); w < 64; w++ {
				op, err := insts.Decode(w)
				if err != nil {
					continue
				}
				Expect(op.Encode()).To(Equal(w), "word 0x%08x", w)
			}
			for opcode := uint32(0); opcode < 64; opcode++ {
				w := opcode<<26 | 0x01234567&0x03FFFFFF
				op, err := insts.Decode(w)
				if err != nil {
					continue
				}
				Expect(op.Encode()).To(Equal(w), "word 0x%08x", w)
			}
		})
	})
})
