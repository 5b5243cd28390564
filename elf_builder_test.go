package bpfloader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/AtomXCLO/android-system-bpf/ebpf"
)

// The tests in this package run against synthetic objects assembled in
// memory, laid out the same way llvm lays out a compiled bpf.o: a 64-bit
// little-endian relocatable with a section header string table, one symbol
// table and its string table.

type testSection struct {
	name    string
	typ     elf.SectionType
	flags   elf.SectionFlag
	data    []byte
	entsize uint64
}

type testSymbol struct {
	name string
	// section this symbol belongs to, resolved to its header index
	section string
	value   uint64
	size    uint64
	info    uint8
}

type elfBuilder struct {
	sections []testSection
	symbols  []testSymbol
}

func (b *elfBuilder) section(name string, typ elf.SectionType, flags elf.SectionFlag, data []byte) *elfBuilder {
	b.sections = append(b.sections, testSection{name: name, typ: typ, flags: flags, data: data})
	return b
}

func (b *elfBuilder) progbits(name string, data []byte) *elfBuilder {
	return b.section(name, elf.SHT_PROGBITS, elf.SHF_ALLOC, data)
}

func (b *elfBuilder) symbol(name, section string, value uint64, info uint8) *elfBuilder {
	b.symbols = append(b.symbols, testSymbol{name: name, section: section, value: value, info: info})
	return b
}

func (b *elfBuilder) funcSymbol(name, section string, value uint64) *elfBuilder {
	return b.symbol(name, section, value, uint8(elf.STB_GLOBAL)<<4|uint8(elf.STT_FUNC))
}

// sectionIndex is the header table index a named section will get: the null
// section is index 0, user sections follow in insertion order.
func (b *elfBuilder) sectionIndex(name string) uint16 {
	for i, sec := range b.sections {
		if sec.name == name {
			return uint16(i + 1)
		}
	}
	return 0
}

const (
	elfHeaderSize    = 64
	sectionHdrSize   = 64
	symbolEntrySize  = 24
	elfMachineBPF    = 247
	elfTypeRelocable = 1
)

type builtSection struct {
	testSection
	nameOff uint32
	link    uint32
	info    uint32
}

// build assembles the object: ELF header, section payloads, then the section
// header table. A .symtab/.strtab pair is appended when symbols were added,
// the .shstrtab always.
func (b *elfBuilder) build(t *testing.T) []byte {
	t.Helper()

	secs := make([]builtSection, 0, len(b.sections)+3)
	for _, sec := range b.sections {
		secs = append(secs, builtSection{testSection: sec})
	}

	if len(b.symbols) > 0 {
		strtab := []byte{0}
		symtab := make([]byte, symbolEntrySize) // null symbol
		for _, sym := range b.symbols {
			nameOff := uint32(len(strtab))
			strtab = append(strtab, sym.name...)
			strtab = append(strtab, 0)

			entry := make([]byte, symbolEntrySize)
			binary.LittleEndian.PutUint32(entry[0:4], nameOff)
			entry[4] = sym.info
			entry[5] = 0 // st_other
			binary.LittleEndian.PutUint16(entry[6:8], b.sectionIndex(sym.section))
			binary.LittleEndian.PutUint64(entry[8:16], sym.value)
			binary.LittleEndian.PutUint64(entry[16:24], sym.size)
			symtab = append(symtab, entry...)
		}

		strtabIdx := uint32(len(secs) + 2)
		secs = append(secs, builtSection{
			testSection: testSection{name: ".symtab", typ: elf.SHT_SYMTAB, data: symtab, entsize: symbolEntrySize},
			link:        strtabIdx,
			info:        1,
		})
		secs = append(secs, builtSection{
			testSection: testSection{name: ".strtab", typ: elf.SHT_STRTAB, data: strtab},
		})
	}

	shstrtab := []byte{0}
	for i := range secs {
		secs[i].nameOff = uint32(len(shstrtab))
		shstrtab = append(shstrtab, secs[i].name...)
		shstrtab = append(shstrtab, 0)
	}
	shstrtabNameOff := uint32(len(shstrtab))
	shstrtab = append(shstrtab, ".shstrtab"...)
	shstrtab = append(shstrtab, 0)
	secs = append(secs, builtSection{
		testSection: testSection{name: ".shstrtab", typ: elf.SHT_STRTAB, data: shstrtab},
		nameOff:     shstrtabNameOff,
	})

	// payload offsets, the null section has no payload
	offsets := make([]uint64, len(secs))
	off := uint64(elfHeaderSize)
	for i := range secs {
		offsets[i] = off
		off += uint64(len(secs[i].data))
	}
	shoff := off
	shnum := uint16(len(secs) + 1)

	var buf bytes.Buffer
	ident := make([]byte, 16)
	copy(ident, elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	buf.Write(ident)

	hdr := make([]byte, elfHeaderSize-16)
	binary.LittleEndian.PutUint16(hdr[0:2], elfTypeRelocable)
	binary.LittleEndian.PutUint16(hdr[2:4], elfMachineBPF)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(elf.EV_CURRENT))
	binary.LittleEndian.PutUint64(hdr[24:32], shoff)
	binary.LittleEndian.PutUint16(hdr[36:38], elfHeaderSize)
	binary.LittleEndian.PutUint16(hdr[42:44], sectionHdrSize)
	binary.LittleEndian.PutUint16(hdr[44:46], shnum)
	binary.LittleEndian.PutUint16(hdr[46:48], shnum-1) // shstrndx is the last section
	buf.Write(hdr)

	for i := range secs {
		buf.Write(secs[i].data)
	}

	// null section header
	buf.Write(make([]byte, sectionHdrSize))
	for i := range secs {
		sh := make([]byte, sectionHdrSize)
		binary.LittleEndian.PutUint32(sh[0:4], secs[i].nameOff)
		binary.LittleEndian.PutUint32(sh[4:8], uint32(secs[i].typ))
		binary.LittleEndian.PutUint64(sh[8:16], uint64(secs[i].flags))
		binary.LittleEndian.PutUint64(sh[24:32], offsets[i])
		binary.LittleEndian.PutUint64(sh[32:40], uint64(len(secs[i].data)))
		binary.LittleEndian.PutUint32(sh[40:44], secs[i].link)
		binary.LittleEndian.PutUint32(sh[44:48], secs[i].info)
		binary.LittleEndian.PutUint64(sh[48:56], 1) // sh_addralign
		binary.LittleEndian.PutUint64(sh[56:64], secs[i].entsize)
		buf.Write(sh)
	}

	return buf.Bytes()
}

func (b *elfBuilder) object(t *testing.T) *objectFile {
	t.Helper()

	o, err := newObjectFile(bytes.NewReader(b.build(t)), "test.o")
	if err != nil {
		t.Fatalf("newObjectFile: %v", err)
	}
	return o
}

// symbolIndex is the full symbol-table index (counting the null symbol) a
// relocation entry uses to reference the i-th added symbol.
func (b *elfBuilder) symbolIndex(name string) uint32 {
	for i, sym := range b.symbols {
		if sym.name == name {
			return uint32(i + 1)
		}
	}
	return 0
}

func rawInsn(op, reg uint8, off int16, imm int32) []byte {
	d := make([]byte, ebpf.BPFInstSize)
	d[0] = op
	d[1] = reg
	binary.LittleEndian.PutUint16(d[2:4], uint16(off))
	binary.LittleEndian.PutUint32(d[4:8], uint32(imm))
	return d
}

// movR0Exit is the smallest verifier-clean program: mov r0, 0; exit.
func movR0Exit() []byte {
	return append(rawInsn(0xb7, 0, 0, 0), rawInsn(0x95, 0, 0, 0)...)
}

func relEntry(offset uint64, symIndex uint32) []byte {
	d := make([]byte, elfRelEntrySize)
	binary.LittleEndian.PutUint64(d[0:8], offset)
	// R_BPF_64_64
	binary.LittleEndian.PutUint64(d[8:16], uint64(symIndex)<<32|1)
	return d
}

func mapDefBytes(def MapDef) []byte {
	d := make([]byte, MapDefSize)
	for i, v := range []uint32{
		uint32(def.Type), def.KeySize, def.ValueSize, def.MaxEntries, uint32(def.Flags),
		def.MinKver, def.MaxKver, def.UID, def.GID, def.Mode, def.Shared, def.Zero,
	} {
		binary.LittleEndian.PutUint32(d[i*4:i*4+4], v)
	}
	return d
}

func progDefBytes(def ProgDef) []byte {
	d := make([]byte, ProgDefSize)
	for i, v := range []uint32{def.UID, def.GID, def.MinKver, def.MaxKver, def.Optional, def.Zero} {
		binary.LittleEndian.PutUint32(d[i*4:i*4+4], v)
	}
	return d
}
