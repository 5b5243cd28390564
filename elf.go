package bpfloader

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
)

// objectFile is the in-memory image of one eBPF ELF relocatable. It owns the
// underlying file handle for the duration of a load.
type objectFile struct {
	path   string
	closer io.Closer
	elf    *elf.File
}

func openObjectFile(path string) (*objectFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	o, err := newObjectFile(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	o.closer = f

	return o, nil
}

// newObjectFile parses the ELF container from r. Separated from
// openObjectFile so objects can also be read from memory.
func newObjectFile(r io.ReaderAt, path string) (*objectFile, error) {
	elfFile, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if elfFile.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("%w: elf file class is not 64 bit, class: '%s'", ErrMalformed, elfFile.Class)
	}

	if elfFile.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("%w: elf file is not little-endian, data: '%s'", ErrMalformed, elfFile.Data)
	}

	if elfFile.Machine != elf.EM_BPF {
		return nil, fmt.Errorf("%w: elf file machine type is not BPF, machine type: '%s'", ErrMalformed, elfFile.Machine)
	}

	return &objectFile{path: path, elf: elfFile}, nil
}

func (o *objectFile) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

// sectionByName reads the full contents of the first section with the given
// name. Absence is reported as ErrSectionNotFound, everything else as
// ErrMalformed.
func (o *objectFile) sectionByName(name string) ([]byte, error) {
	section := o.elf.Section(name)
	if section == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrSectionNotFound, name)
	}

	data, err := section.Data()
	if err != nil {
		return nil, fmt.Errorf("%w: error while reading section '%s': %v", ErrMalformed, name, err)
	}

	return data, nil
}

// sectionByType reads the full contents of the first section with the given
// type.
func (o *objectFile) sectionByType(typ elf.SectionType) ([]byte, error) {
	for _, section := range o.elf.Sections {
		if section.Type != typ {
			continue
		}

		data, err := section.Data()
		if err != nil {
			return nil, fmt.Errorf("%w: error while reading section '%s': %v", ErrMalformed, section.Name, err)
		}

		return data, nil
	}

	return nil, fmt.Errorf("%w: type %v", ErrSectionNotFound, typ)
}

// sectionIndex returns the index of the first section with the given name, or
// -1 when no such section exists.
func (o *objectFile) sectionIndex(name string) int {
	for i, section := range o.elf.Sections {
		if section.Name == name {
			return i
		}
	}
	return -1
}

// sectionUint decodes the first 4 bytes of the named section as a
// little-endian 32-bit unsigned integer. The given default is returned when
// the section is absent or shorter than 4 bytes; optional metadata sections
// are the only consumers.
func (o *objectFile) sectionUint(name string, defVal uint32) uint32 {
	data, err := o.sectionByName(name)
	if err != nil {
		log.Tracef("Couldn't find section %s (defaulting to %d [0x%x]).", name, defVal, defVal)
		return defVal
	}

	if len(data) < 4 {
		log.Errorf("Section %s too short (defaulting to %d [0x%x]).", name, defVal, defVal)
		return defVal
	}

	// there will likely be more than 4 bytes due to alignment, the value only
	// occupies the first 4
	value := binary.LittleEndian.Uint32(data[:4])
	log.Tracef("Section %s value is %d [0x%x]", name, value, value)
	return value
}

// symbols returns the symbol table, optionally sorted ascending by st_value.
// The sort order is what pairs definition records with their names, so it has
// to be stable.
func (o *objectFile) symbols(sorted bool) ([]elf.Symbol, error) {
	syms, err := o.elf.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, fmt.Errorf("%w: symbol table", ErrSectionNotFound)
		}
		return nil, fmt.Errorf("%w: error while reading symbol table: %v", ErrMalformed, err)
	}

	if sorted {
		sort.SliceStable(syms, func(i, j int) bool {
			return syms[i].Value < syms[j].Value
		})
	}

	return syms, nil
}

// symbolNameByIndex resolves a symbol-table index from a relocation entry to
// the symbol's name. Index 0 is the null symbol, which debug/elf omits from
// its table, hence the off-by-one.
func (o *objectFile) symbolNameByIndex(index int) (string, error) {
	syms, err := o.symbols(false)
	if err != nil {
		return "", err
	}

	if index < 1 || index > len(syms) {
		return "", fmt.Errorf("%w: symbol index %d out of range", ErrMalformed, index)
	}

	return syms[index-1].Name, nil
}

// sectionSymNames returns the names of all symbols belonging to the named
// section, in ascending st_value order. When onlyFunc is set, only STT_FUNC
// symbols are considered. This order is the authoritative pairing order
// between definition records and names.
func (o *objectFile) sectionSymNames(sectionName string, onlyFunc bool) ([]string, error) {
	symtab, err := o.symbols(true)
	if err != nil {
		return nil, err
	}

	secIdx := o.sectionIndex(sectionName)
	if secIdx == -1 {
		log.Warnf("No %s section could be found in elf object", sectionName)
		return nil, fmt.Errorf("%w: '%s'", ErrSectionNotFound, sectionName)
	}

	var names []string
	for _, sym := range symtab {
		if onlyFunc && elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}

		if int(sym.Section) == secIdx {
			names = append(names, sym.Name)
		}
	}

	return names, nil
}
