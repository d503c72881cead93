package loader_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/p2k/solomips/loader"
)

// relSpec describes one relocation entry for the test object builder.
type relSpec struct {
	offset uint32
	sym    uint32
	typ    uint8
}

// objectSpec describes a synthetic relocatable ELF32/MIPS object.
//
// Section layout: 0 null, 1 .text, 2 .data, 3 .symtab, 4 .strtab,
// 5 .shstrtab, 6 .rel.text.
type objectSpec struct {
	order     binary.ByteOrder
	encByte   byte
	machine   uint16
	objType   uint16
	text      []uint32
	dataSize  uint32
	dataFill  byte
	mainInfo  uint8
	mainValue uint32
	relocs    []relSpec
}

func defaultObjectSpec() objectSpec {
	return objectSpec{
		order:    binary.BigEndian,
		encByte:  2,
		machine:  8, // MIPS
		objType:  1, // relocatable
		text:     []uint32{0x00000000},
		mainInfo: 0x11, // global object
	}
}

const (
	shstrtab = "\x00.text\x00.data\x00.symtab\x00.strtab\x00.shstrtab\x00.rel.text\x00"
	strtab   = "\x00main\x00"
)

// buildObject assembles the object file described by spec.
func buildObject(spec objectSpec) []byte {
	const (
		headerSize  = 52
		sectionSize = 40
		numSections = 7
	)

	textSize := uint32(len(spec.text) * 4)
	symtabSize := uint32(3 * 16)
	relSize := uint32(len(spec.relocs) * 8)

	textOff := uint32(headerSize + numSections*sectionSize)
	dataOff := textOff + textSize
	symtabOff := dataOff + spec.dataSize
	strtabOff := symtabOff + symtabSize
	shstrtabOff := strtabOff + uint32(len(strtab))
	relOff := shstrtabOff + uint32(len(shstrtab))

	buf := make([]byte, relOff+relSize)
	o := spec.order

	// ELF header
	copy(buf, []byte{0x7f, 'E', 'L', 'F', 1, spec.encByte})
	o.PutUint16(buf[16:], spec.objType)
	o.PutUint16(buf[18:], spec.machine)
	o.PutUint32(buf[20:], 1) // version
	o.PutUint32(buf[32:], headerSize)
	o.PutUint16(buf[40:], headerSize)
	o.PutUint16(buf[46:], sectionSize)
	o.PutUint16(buf[48:], numSections)
	o.PutUint16(buf[50:], 5) // shstrndx

	putSection := func(i int, name, typ, flags, offset, size, link, info, entsize uint32) {
		base := headerSize + i*sectionSize
		o.PutUint32(buf[base:], name)
		o.PutUint32(buf[base+4:], typ)
		o.PutUint32(buf[base+8:], flags)
		o.PutUint32(buf[base+16:], offset)
		o.PutUint32(buf[base+20:], size)
		o.PutUint32(buf[base+24:], link)
		o.PutUint32(buf[base+28:], info)
		o.PutUint32(buf[base+36:], entsize)
	}

	putSection(1, 1, 1, 6, textOff, textSize, 0, 0, 0)           // .text
	putSection(2, 7, 1, 3, dataOff, spec.dataSize, 0, 0, 0)      // .data
	putSection(3, 13, 2, 0, symtabOff, symtabSize, 4, 1, 16)     // .symtab
	putSection(4, 21, 3, 0, strtabOff, uint32(len(strtab)), 0, 0, 0)
	putSection(5, 29, 3, 0, shstrtabOff, uint32(len(shstrtab)), 0, 0, 0)
	putSection(6, 39, 9, 0, relOff, relSize, 3, 1, 8) // .rel.text

	// .text
	for i, w := range spec.text {
		o.PutUint32(buf[textOff+uint32(i*4):], w)
	}

	// .data
	for i := uint32(0); i < spec.dataSize; i++ {
		buf[dataOff+i] = spec.dataFill
	}

	// .symtab: null, "main", .data section symbol
	mainOff := symtabOff + 16
	o.PutUint32(buf[mainOff:], 1) // name index of "main"
	o.PutUint32(buf[mainOff+4:], spec.mainValue)
	buf[mainOff+12] = spec.mainInfo
	o.PutUint16(buf[mainOff+14:], 1) // .text
	sectionSymOff := symtabOff + 32
	buf[sectionSymOff+12] = 0x03     // local section symbol
	o.PutUint16(buf[sectionSymOff+14:], 2) // .data

	copy(buf[strtabOff:], strtab)
	copy(buf[shstrtabOff:], shstrtab)

	// .rel.text
	for i, r := range spec.relocs {
		base := relOff + uint32(i*8)
		o.PutUint32(buf[base:], r.offset)
		o.PutUint32(buf[base+4:], r.sym<<8|uint32(r.typ))
	}

	return buf
}

var _ = Describe("Object", func() {
	Describe("Parse", func() {
		It("should parse a big-endian object", func() {
			data := buildObject(defaultObjectSpec())

			obj := &loader.Object{}
			Expect(obj.Parse(data)).To(Succeed())
			Expect(obj.Enc).To(Equal(loader.EncMSB))
			Expect(obj.Machine).To(Equal(loader.MachineMIPS))
			Expect(obj.Type).To(Equal(loader.TypeRel))
			Expect(obj.Shnum).To(Equal(uint16(7)))
			Expect(obj.Sections).To(HaveLen(7))
		})

		It("should parse a little-endian object", func() {
			spec := defaultObjectSpec()
			spec.order = binary.LittleEndian
			spec.encByte = 1
			data := buildObject(spec)

			obj := &loader.Object{}
			Expect(obj.Parse(data)).To(Succeed())
			Expect(obj.Enc).To(Equal(loader.EncLSB))
			Expect(obj.Machine).To(Equal(loader.MachineMIPS))
		})

		It("should resolve section names through the string table", func() {
			obj := &loader.Object{}
			Expect(obj.Parse(buildObject(defaultObjectSpec()))).To(Succeed())

			Expect(obj.Sections[1].Name).To(Equal(".text"))
			Expect(obj.Sections[2].Name).To(Equal(".data"))
			Expect(obj.Sections[3].Name).To(Equal(".symtab"))
			Expect(obj.Sections[6].Name).To(Equal(".rel.text"))
		})

		It("should eagerly parse the symbol table", func() {
			obj := &loader.Object{}
			Expect(obj.Parse(buildObject(defaultObjectSpec()))).To(Succeed())

			symtab := obj.Sections[3].SymbolTable
			Expect(symtab).To(HaveLen(3))
			Expect(symtab[1].Name).To(Equal("main"))
			Expect(symtab[1].Type()).To(Equal(loader.SymObject))
			Expect(symtab[1].IsGlobal()).To(BeTrue())
			Expect(symtab[1].Shndx).To(Equal(uint16(1)))
			Expect(symtab[2].Type()).To(Equal(loader.SymSection))
			Expect(symtab[2].IsLocal()).To(BeTrue())
		})

		It("should eagerly parse the relocation table", func() {
			spec := defaultObjectSpec()
			spec.text = []uint32{0, 0}
			spec.relocs = []relSpec{
				{offset: 0, sym: 2, typ: 9},
				{offset: 4, sym: 2, typ: 6},
			}
			obj := &loader.Object{}
			Expect(obj.Parse(buildObject(spec))).To(Succeed())

			rels := obj.Sections[6].RelTable
			Expect(rels).To(HaveLen(2))
			Expect(rels[0].Type()).To(Equal(loader.RelMIPSGot16))
			Expect(rels[0].Sym()).To(Equal(uint32(2)))
			Expect(rels[1].Type()).To(Equal(loader.RelMIPSLo16))
			Expect(rels[1].Offset).To(Equal(uint32(4)))
		})

		It("should reject files smaller than an ELF header", func() {
			obj := &loader.Object{}
			err := obj.Parse(make([]byte, 51))

			Expect(err).To(BeAssignableToTypeOf(&loader.ParseError{}))
		})

		It("should reject a bad magic", func() {
			data := buildObject(defaultObjectSpec())
			data[0] = 0x7e

			obj := &loader.Object{}
			Expect(obj.Parse(data)).NotTo(Succeed())
		})

		It("should reject a 64-bit class byte", func() {
			data := buildObject(defaultObjectSpec())
			data[4] = 2

			obj := &loader.Object{}
			Expect(obj.Parse(data)).NotTo(Succeed())
		})

		It("should reject non-zero OS/ABI identification padding", func() {
			data := buildObject(defaultObjectSpec())
			data[7] = 3

			obj := &loader.Object{}
			Expect(obj.Parse(data)).NotTo(Succeed())
		})

		It("should reject a wrong version", func() {
			data := buildObject(defaultObjectSpec())
			binary.BigEndian.PutUint32(data[20:], 2)

			obj := &loader.Object{}
			Expect(obj.Parse(data)).NotTo(Succeed())
		})

		It("should reject a wrong header size", func() {
			data := buildObject(defaultObjectSpec())
			binary.BigEndian.PutUint16(data[40:], 64)

			obj := &loader.Object{}
			Expect(obj.Parse(data)).NotTo(Succeed())
		})

		It("should reject a section table extending past the file", func() {
			data := buildObject(defaultObjectSpec())
			binary.BigEndian.PutUint32(data[32:], uint32(len(data)-10))

			obj := &loader.Object{}
			Expect(obj.Parse(data)).NotTo(Succeed())
		})

		It("should accept a file without a section table", func() {
			data := buildObject(defaultObjectSpec())[:52]
			binary.BigEndian.PutUint32(data[32:], 0) // shoff = 0

			obj := &loader.Object{}
			Expect(obj.Parse(data)).To(Succeed())
			Expect(obj.Sections).To(BeEmpty())
		})
	})

	Describe("IndexOfSection", func() {
		It("should find sections by name", func() {
			obj := &loader.Object{}
			Expect(obj.Parse(buildObject(defaultObjectSpec()))).To(Succeed())

			Expect(obj.IndexOfSection(".text")).To(Equal(1))
			Expect(obj.IndexOfSection(".symtab")).To(Equal(3))
			Expect(obj.IndexOfSection(".bss")).To(Equal(loader.SectionNotFound))
		})
	})
})
