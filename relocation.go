package bpfloader

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"github.com/AtomXCLO/android-system-bpf/bpfsys"
	"github.com/AtomXCLO/android-system-bpf/ebpf"
)

// applyRelocation patches the instruction at the given byte offset with a map
// file descriptor. Only the 64-bit immediate load is a valid target; anything
// else is logged and skipped, the kernel verifier is the authority on what a
// valid patched instruction is.
func applyRelocation(sec *codeSection, offset uint64, fd bpfsys.BPFfd) {
	insnIndex := int(offset) / ebpf.BPFInstSize
	if insnIndex < 0 || insnIndex >= len(sec.insns) {
		log.Errorf("invalid relo offset 0x%x in section %s", offset, sec.name)
		return
	}

	insn := &sec.insns[insnIndex]
	if insn.Op != ebpf.BPF_LD_IMM64 {
		log.Errorf("invalid relo for insn %d: code 0x%x", insnIndex, insn.Op)
		return
	}

	insn.Imm = int32(fd)
	insn.SetSourceReg(ebpf.BPF_PSEUDO_MAP_FD)
}

// applyMapRelocations rewrites every code section's instruction stream,
// replacing symbolic map references with the concrete descriptors from the
// map installer. The fd vector is index-aligned with the name vector.
// Relocations against symbols that are not map names are silently ignored;
// symbols for other sections may share the table.
func applyMapRelocations(o *objectFile, mapNames []string, mapFds []bpfsys.BPFfd, cs []codeSection) error {
	if len(mapNames) == 0 {
		return nil
	}

	for k := range cs {
		sec := &cs[k]

		for i := 0; i < len(sec.relData); i += elfRelEntrySize {
			offset := binary.LittleEndian.Uint64(sec.relData[i : i+8])
			info := binary.LittleEndian.Uint64(sec.relData[i+8 : i+16])

			symIndex := int(info >> 32) // ELF64_R_SYM
			symName, err := o.symbolNameByIndex(symIndex)
			if err != nil {
				return err
			}

			// Find the map fd and apply the relocation
			for j, mapName := range mapNames {
				if mapName == symName {
					applyRelocation(sec, offset, mapFds[j])
					break
				}
			}
		}
	}

	return nil
}
