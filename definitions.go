package bpfloader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/AtomXCLO/android-system-bpf/bpftypes"
)

// MapDefSize is the size of one packed MapDef record in the 'maps' section.
const MapDefSize = 48

// MapDef is the fixed-layout record describing one map to install. The
// i-th record in the 'maps' section belongs to the i-th symbol of that
// section after the st_value sort.
type MapDef struct {
	Type       bpftypes.BPFMapType
	KeySize    uint32
	ValueSize  uint32
	MaxEntries uint32
	Flags      bpftypes.BPFMapFlags
	// MinKver and MaxKver bound the kernel versions the map is created on,
	// packed KERNEL_VERSION style. The range is [MinKver, MaxKver).
	MinKver uint32
	MaxKver uint32
	// UID, GID and Mode are applied to the pin file of a newly created map.
	UID  uint32
	GID  uint32
	Mode uint32
	// Shared maps are pinned without the object name so multiple objects
	// resolve to the same pin.
	Shared uint32
	// Zero must be zero. A non-zero value means the object was built against
	// an incompatible record layout and nothing about it can be trusted.
	Zero uint32
}

// Equal checks if two map definitions are functionally identical
func (def MapDef) Equal(other MapDef) bool {
	return def == other
}

// ProgDefSize is the size of one packed ProgDef record in the 'progs' section.
const ProgDefSize = 24

// ProgDef is the fixed-layout record describing how one program is installed.
// It is named '<progsym>_def' in the symbol table and pairs with the code
// section whose first function symbol is '<progsym>'.
type ProgDef struct {
	UID     uint32
	GID     uint32
	MinKver uint32
	MaxKver uint32
	// Optional programs that fail the verifier are skipped instead of
	// failing the whole object.
	Optional uint32
	// Zero is reserved padding.
	Zero uint32
}

func decodeMapDefs(data []byte) ([]MapDef, error) {
	if len(data)%MapDefSize != 0 {
		return nil, fmt.Errorf("%w: improper sized maps section, %d %% %d != 0",
			ErrMalformed, len(data), MapDefSize)
	}

	defs := make([]MapDef, 0, len(data)/MapDefSize)
	for i := 0; i < len(data); i += MapDefSize {
		d := data[i : i+MapDefSize]
		defs = append(defs, MapDef{
			Type:       bpftypes.BPFMapType(binary.LittleEndian.Uint32(d[0:4])),
			KeySize:    binary.LittleEndian.Uint32(d[4:8]),
			ValueSize:  binary.LittleEndian.Uint32(d[8:12]),
			MaxEntries: binary.LittleEndian.Uint32(d[12:16]),
			Flags:      bpftypes.BPFMapFlags(binary.LittleEndian.Uint32(d[16:20])),
			MinKver:    binary.LittleEndian.Uint32(d[20:24]),
			MaxKver:    binary.LittleEndian.Uint32(d[24:28]),
			UID:        binary.LittleEndian.Uint32(d[28:32]),
			GID:        binary.LittleEndian.Uint32(d[32:36]),
			Mode:       binary.LittleEndian.Uint32(d[36:40]),
			Shared:     binary.LittleEndian.Uint32(d[40:44]),
			Zero:       binary.LittleEndian.Uint32(d[44:48]),
		})
	}

	return defs, nil
}

func decodeProgDefs(data []byte) ([]ProgDef, error) {
	if len(data)%ProgDefSize != 0 {
		return nil, fmt.Errorf("%w: improper sized progs section, %d %% %d != 0",
			ErrMalformed, len(data), ProgDefSize)
	}

	defs := make([]ProgDef, 0, len(data)/ProgDefSize)
	for i := 0; i < len(data); i += ProgDefSize {
		d := data[i : i+ProgDefSize]
		defs = append(defs, ProgDef{
			UID:      binary.LittleEndian.Uint32(d[0:4]),
			GID:      binary.LittleEndian.Uint32(d[4:8]),
			MinKver:  binary.LittleEndian.Uint32(d[8:12]),
			MaxKver:  binary.LittleEndian.Uint32(d[12:16]),
			Optional: binary.LittleEndian.Uint32(d[16:20]),
			Zero:     binary.LittleEndian.Uint32(d[20:24]),
		})
	}

	return defs, nil
}

// readMapDefs decodes the packed records of the 'maps' section. An object
// without maps yields an empty slice.
func (o *objectFile) readMapDefs() ([]MapDef, error) {
	data, err := o.sectionByName("maps")
	if err != nil {
		if errors.Is(err, ErrSectionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return decodeMapDefs(data)
}

// readProgDefs decodes the packed records of the 'progs' section. An object
// without program definitions yields an empty slice.
func (o *objectFile) readProgDefs() ([]ProgDef, error) {
	data, err := o.sectionByName("progs")
	if err != nil {
		if errors.Is(err, ErrSectionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return decodeProgDefs(data)
}
