// Package linker turns a single relocatable ELF32/MIPS object into a
// flat binary image for the emulator.
//
// The linker extracts the section referenced by the "main" symbol,
// resolves GOT16+LO16 relocation pairs against the .data section,
// prepends a GP/stack prologue and writes the prologue as big-endian
// instruction words followed by the text bytes in the object's own
// byte order.
package linker

import (
	"fmt"
	"io"

	"github.com/p2k/solomips/insts"
	"github.com/p2k/solomips/loader"
)

// LinkError reports an input object the linker cannot process.
type LinkError struct {
	Msg string
}

func (e *LinkError) Error() string {
	return e.Msg
}

func linkErrorf(format string, args ...interface{}) error {
	return &LinkError{Msg: fmt.Sprintf(format, args...)}
}

// Linker drives the ELF reader and emits the flat image.
type Linker struct {
	Input []string
	Entry uint32
	TData uint32
	SData uint32
}

// New creates a linker for the given input files and memory layout.
func New(input []string, entry, tdata, sdata uint32) *Linker {
	return &Linker{
		Input: input,
		Entry: entry,
		TData: tdata,
		SData: sdata,
	}
}

// Run links the input object and writes the image to out.
func (l *Linker) Run(out io.Writer) error {
	if len(l.Input) == 0 {
		return linkErrorf("no input files")
	}
	if len(l.Input) > 1 {
		return linkErrorf("currently only a single input file is supported")
	}

	input := l.Input[0]
	data, err := loader.ReadBinaryFile(input)
	if err != nil {
		return err
	}

	obj, text, mainSym, err := l.load(input, data)
	if err != nil {
		return err
	}

	prologue := l.buildPrologue(obj, mainSym)
	for _, word := range prologue {
		var buf [4]byte
		buf[0] = uint8(word >> 24)
		buf[1] = uint8(word >> 16)
		buf[2] = uint8(word >> 8)
		buf[3] = uint8(word)
		if _, err := out.Write(buf[:]); err != nil {
			return err
		}
	}
	if _, err := out.Write(text); err != nil {
		return err
	}
	return nil
}

// Disassemble prints a disassembly of each input's text section.
func (l *Linker) Disassemble(out io.Writer) error {
	if len(l.Input) == 0 {
		return linkErrorf("no input files")
	}

	for _, input := range l.Input {
		data, err := loader.ReadBinaryFile(input)
		if err != nil {
			return err
		}
		_, text, _, err := l.load(input, data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "%s:\n", input); err != nil {
			return err
		}
		if err := insts.Disassemble(text, l.Entry, out); err != nil {
			return err
		}
	}
	return nil
}

// load runs the validation cascade and returns the parsed object, a
// relocated copy of the text bytes and the main symbol.
func (l *Linker) load(input string, data []byte) (*loader.Object, []byte, *loader.SymbolTableEntry, error) {
	obj := &loader.Object{}
	if err := obj.Parse(data); err != nil {
		return nil, nil, nil, linkErrorf("'%s' is not an ELF32 object file: %v", input, err)
	}

	if obj.Machine != loader.MachineMIPS {
		return nil, nil, nil, linkErrorf("unsupported machine type in ELF object file '%s'", input)
	}
	if obj.Type != loader.TypeRel {
		return nil, nil, nil, linkErrorf("unsupported ELF object type in file '%s'", input)
	}

	if obj.IndexOfSection(".text") == loader.SectionNotFound {
		return nil, nil, nil, linkErrorf("object file '%s' does not contain any code", input)
	}
	si := obj.IndexOfSection(".symtab")
	if si == loader.SectionNotFound {
		return nil, nil, nil, linkErrorf("object file '%s' does not contain a symbol table", input)
	}

	symtab := &obj.Sections[si]
	var mainSym *loader.SymbolTableEntry
	for i := range symtab.SymbolTable {
		if symtab.SymbolTable[i].Name == "main" {
			mainSym = &symtab.SymbolTable[i]
			break
		}
	}
	if mainSym == nil {
		return nil, nil, nil, linkErrorf("object file '%s' does not contain a \"main\" symbol", input)
	}
	if mainSym.Value != 0 && mainSym.Type() != loader.SymFunc {
		return nil, nil, nil, linkErrorf("\"main\" symbol in object file '%s' must point to the first instruction", input)
	}

	ti := int(mainSym.Shndx)
	if ti <= 0 || ti >= len(obj.Sections) {
		return nil, nil, nil, linkErrorf("\"main\" symbol in object file '%s' does not reference a section", input)
	}
	textSec := &obj.Sections[ti]
	if textSec.Type != loader.SecProgBits {
		return nil, nil, nil, linkErrorf("\"main\" symbol in object file '%s' does not reference a code section", input)
	}
	if uint64(textSec.Offset)+uint64(textSec.Size) > uint64(len(data)) {
		return nil, nil, nil, linkErrorf("code section of object file '%s' extends past end of file", input)
	}

	di := obj.IndexOfSection(".data")
	if di != loader.SectionNotFound {
		dataSec := &obj.Sections[di]
		if dataSec.Size > l.SData-4 {
			return nil, nil, nil, linkErrorf("data section of object file '%s' does not fit into the reserved data region", input)
		}
		if dataSec.Type == loader.SecProgBits {
			if uint64(dataSec.Offset)+uint64(dataSec.Size) > uint64(len(data)) {
				return nil, nil, nil, linkErrorf("data section of object file '%s' extends past end of file", input)
			}
			for _, b := range data[dataSec.Offset : dataSec.Offset+dataSec.Size] {
				if b != 0 {
					return nil, nil, nil, linkErrorf("initialized data in object file '%s' is not supported", input)
				}
			}
		}
	}

	text := make([]byte, textSec.Size)
	copy(text, data[textSec.Offset:textSec.Offset+textSec.Size])

	if err := l.relocate(input, obj, text, ti, si, di); err != nil {
		return nil, nil, nil, err
	}

	return obj, text, mainSym, nil
}

// relocate applies the supported GOT16+LO16 pairs to the text copy.
func (l *Linker) relocate(input string, obj *loader.Object, text []byte, ti, si, di int) error {
	ri := loader.SectionNotFound
	for i := range obj.Sections {
		if obj.Sections[i].Type == loader.SecRel && obj.Sections[i].Info == uint32(ti) {
			ri = i
			break
		}
	}
	if ri == loader.SectionNotFound {
		return nil
	}

	relSec := &obj.Sections[ri]
	if relSec.Link != uint32(si) {
		return linkErrorf("code relocation table of object file '%s' does not point to the correct symbol table", input)
	}
	if len(relSec.RelTable) == 0 {
		return nil
	}

	symtab := obj.Sections[si].SymbolTable
	order := obj.ByteOrder()

	for i := 0; i < len(relSec.RelTable); i++ {
		got := &relSec.RelTable[i]
		if got.Type() != loader.RelMIPSGot16 {
			return linkErrorf("unsupported relocation type %d in object file '%s'", got.Type(), input)
		}
		if i+1 >= len(relSec.RelTable) {
			return linkErrorf("unpaired GOT16 relocation in object file '%s'", input)
		}
		lo := &relSec.RelTable[i+1]
		if lo.Type() != loader.RelMIPSLo16 || lo.Sym() != got.Sym() {
			return linkErrorf("unpaired GOT16 relocation in object file '%s'", input)
		}

		if got.Sym() >= uint32(len(symtab)) {
			return linkErrorf("relocation in object file '%s' references a bad symbol", input)
		}
		sym := &symtab[got.Sym()]
		if sym.Type() != loader.SymSection || di == loader.SectionNotFound || int(sym.Shndx) != di {
			return linkErrorf("relocation in object file '%s' does not target the data section", input)
		}

		if uint64(got.Offset)+4 > uint64(len(text)) || uint64(lo.Offset)+4 > uint64(len(text)) {
			return linkErrorf("relocation offset in object file '%s' is out of bounds", input)
		}

		// The GOT holds exactly one entry at offset 0 from gp; the LO16
		// low half already carries the within-.data offset.
		word := order.Uint32(text[got.Offset:])
		order.PutUint32(text[got.Offset:], word&^0xffff)

		i++ // consume the LO16
	}

	return nil
}

// buildPrologue assembles the GP/GOT setup and, for a function-typed
// main, the stack/call/halt sequence. LUI+ORI pairs are emitted
// unconditionally so the prologue length is fixed.
func (l *Linker) buildPrologue(obj *loader.Object, mainSym *loader.SymbolTableEntry) []uint32 {
	var words []uint32

	di := obj.IndexOfSection(".data")
	if di != loader.SectionNotFound && obj.Sections[di].Size > 0 {
		gotAddr := l.TData + l.SData - 4
		words = append(words,
			encodeLUI(28, uint16(gotAddr>>16)),
			encodeORI(28, 28, uint16(gotAddr)),
			encodeLUI(1, uint16(l.TData>>16)),
			encodeORI(1, 1, uint16(l.TData)),
			encodeSW(1, 0, 28),
			encodeOR(1, 0, 0),
		)
	}

	if mainSym.Type() == loader.SymFunc {
		spAddr := l.TData + l.SData - 8
		words = append(words,
			encodeLUI(29, uint16(spAddr>>16)),
			encodeORI(29, 29, uint16(spAddr)),
			encodeBGEZAL(0, 3),
			encodeNOP(),
			encodeJR(0),
			encodeNOP(),
		)
	}

	return words
}

func encodeLUI(rt uint8, imm uint16) uint32 {
	op := insts.OP{Opcode: insts.OpLUI, RT: rt, Imm: imm}
	return op.Encode()
}

func encodeORI(rt, rs uint8, imm uint16) uint32 {
	op := insts.OP{Opcode: insts.OpORI, RS: rs, RT: rt, Imm: imm}
	return op.Encode()
}

func encodeSW(rt uint8, offset uint16, base uint8) uint32 {
	op := insts.OP{Opcode: insts.OpSW, RS: base, RT: rt, Imm: offset}
	return op.Encode()
}

func encodeOR(rd, rs, rt uint8) uint32 {
	op := insts.OP{Opcode: insts.OpSPECIAL, RS: rs, RT: rt, RD: rd, Funct: insts.FnOR}
	return op.Encode()
}

func encodeBGEZAL(rs uint8, offset int16) uint32 {
	op := insts.OP{Opcode: insts.OpREGIMM, RS: rs, RT: insts.RegimmBGEZAL, Imm: uint16(offset)}
	return op.Encode()
}

func encodeJR(rs uint8) uint32 {
	op := insts.OP{Opcode: insts.OpSPECIAL, RS: rs, Funct: insts.FnJR}
	return op.Encode()
}

func encodeNOP() uint32 {
	return 0
}
