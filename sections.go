package bpfloader

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/AtomXCLO/android-system-bpf/bpftypes"
	"github.com/AtomXCLO/android-system-bpf/ebpf"
)

type sectionType struct {
	prefix             string
	progType           bpftypes.BPFProgType
	expectedAttachType bpftypes.BPFAttachType
}

// Map section name prefixes to program types, the section name will be:
//
//	SECTION(<prefix>/<name-of-program>)
//
// For example SECTION("tracepoint/sched_switch_func") where sched_switch_func
// is the name of the program, and tracepoint is the type. This table is the
// single source of truth; there is no dynamic registration.
var sectionNameTypes = []sectionType{
	{"kprobe/", bpftypes.BPF_PROG_TYPE_KPROBE, bpftypes.BPF_ATTACH_TYPE_UNSPEC},
	{"kretprobe/", bpftypes.BPF_PROG_TYPE_KPROBE, bpftypes.BPF_ATTACH_TYPE_UNSPEC},
	{"perf_event/", bpftypes.BPF_PROG_TYPE_PERF_EVENT, bpftypes.BPF_ATTACH_TYPE_UNSPEC},
	{"skfilter/", bpftypes.BPF_PROG_TYPE_SOCKET_FILTER, bpftypes.BPF_ATTACH_TYPE_UNSPEC},
	{"tracepoint/", bpftypes.BPF_PROG_TYPE_TRACEPOINT, bpftypes.BPF_ATTACH_TYPE_UNSPEC},
	{"uprobe/", bpftypes.BPF_PROG_TYPE_KPROBE, bpftypes.BPF_ATTACH_TYPE_UNSPEC},
	{"uretprobe/", bpftypes.BPF_PROG_TYPE_KPROBE, bpftypes.BPF_ATTACH_TYPE_UNSPEC},
}

// fuseProgTypePath is where a fuse-bpf enabled kernel advertises the integer
// value of its (not upstreamed) fuse program type.
var fuseProgTypePath = "/sys/fs/fuse/bpf_prog_type_fuse"

func getFuseProgType() bpftypes.BPFProgType {
	data, err := os.ReadFile(fuseProgTypePath)
	if err != nil {
		return bpftypes.BPF_PROG_TYPE_UNSPEC
	}

	var result int
	if _, err := fmt.Sscanf(string(data), "%d", &result); err != nil {
		return bpftypes.BPF_PROG_TYPE_UNSPEC
	}

	return bpftypes.BPFProgType(result)
}

func getSectionType(name string) bpftypes.BPFProgType {
	for _, snt := range sectionNameTypes {
		if strings.HasPrefix(name, snt.prefix) {
			return snt.progType
		}
	}

	if strings.HasPrefix(name, "fuse/") {
		return getFuseProgType()
	}

	return bpftypes.BPF_PROG_TYPE_UNSPEC
}

func getExpectedAttachType(name string) bpftypes.BPFAttachType {
	for _, snt := range sectionNameTypes {
		if strings.HasPrefix(name, snt.prefix) {
			return snt.expectedAttachType
		}
	}
	return bpftypes.BPF_ATTACH_TYPE_UNSPEC
}

func getSectionName(progType bpftypes.BPFProgType) string {
	for _, snt := range sectionNameTypes {
		if snt.progType == progType {
			return snt.prefix
		}
	}

	return fmt.Sprintf("UNKNOWN SECTION NAME %d", progType)
}

// isAllowed checks a resolved program type against a location's allow-list. A
// nil list permits anything recognized; the unspecified value in the list is
// a sentinel for whatever the dynamic fuse lookup returns.
func isAllowed(progType bpftypes.BPFProgType, allowed []bpftypes.BPFProgType) bool {
	if allowed == nil {
		return true
	}

	for _, a := range allowed {
		if a == bpftypes.BPF_PROG_TYPE_UNSPEC {
			if progType == getFuseProgType() {
				return true
			}
		} else if progType == a {
			return true
		}
	}

	return false
}

// codeSection is one loadable program: its classified type, instructions,
// relocation bytes and installation record.
type codeSection struct {
	progType           bpftypes.BPFProgType
	expectedAttachType bpftypes.BPFAttachType
	// name is the section name with slashes replaced by underscores
	name    string
	insns   []ebpf.RawInstruction
	relData []byte
	progDef *ProgDef
}

// elfRelEntrySize is the size of one Elf64_Rel entry
const elfRelEntrySize = 16

// readCodeSections collects every program section whose name prefix the
// classifier recognizes, pairing each with its program definition and its
// relocation table. Sections resolving to unrecognized types are silently
// skipped; sections resolving to a disallowed type fail the load.
func readCodeSections(o *objectFile, allowed []bpftypes.BPFProgType) ([]codeSection, error) {
	pd, err := o.readProgDefs()
	if err != nil {
		return nil, err
	}

	progDefNames, err := o.sectionSymNames("progs", false)
	if len(pd) != 0 {
		if err != nil {
			return nil, err
		}
		if len(progDefNames) != len(pd) {
			return nil, fmt.Errorf("%w: %d progs records but %d progs symbols",
				ErrMalformed, len(pd), len(progDefNames))
		}
	}

	var cs []codeSection
	for i, section := range o.elf.Sections {
		name := section.Name

		progType := getSectionType(name)
		if progType == bpftypes.BPF_PROG_TYPE_UNSPEC {
			continue
		}

		if !isAllowed(progType, allowed) {
			log.Errorf("Program type %s not permitted here", getSectionName(progType))
			return nil, fmt.Errorf("section '%s': %w", name, ErrDisallowedProgramType)
		}

		data, err := section.Data()
		if err != nil {
			return nil, fmt.Errorf("%w: error while reading section '%s': %v", ErrMalformed, name, err)
		}

		if len(data) == 0 {
			continue
		}

		if len(data)%ebpf.BPFInstSize != 0 {
			return nil, fmt.Errorf("%w: code section '%s' size is not divisible by %d",
				ErrMalformed, name, ebpf.BPFInstSize)
		}

		insns := make([]ebpf.RawInstruction, len(data)/ebpf.BPFInstSize)
		for j := 0; j < len(data); j += ebpf.BPFInstSize {
			insns[j/ebpf.BPFInstSize] = ebpf.RawInstruction{
				Op:  data[j],
				Reg: data[j+1],
				Off: int16(o.elf.ByteOrder.Uint16(data[j+2 : j+4])),
				Imm: int32(o.elf.ByteOrder.Uint32(data[j+4 : j+8])),
			}
		}

		sec := codeSection{
			progType: progType,
			// must be resolved before '/' is replaced with '_'
			expectedAttachType: getExpectedAttachType(name),
			name:               strings.ReplaceAll(name, "/", "_"),
			insns:              insns,
		}
		log.Tracef("Loaded code section %d (%s)", i, sec.name)

		symNames, err := o.sectionSymNames(name, true)
		if err != nil {
			return nil, err
		}
		if len(symNames) > 0 {
			for j, defName := range progDefNames {
				if defName == symNames[0]+"_def" {
					sec.progDef = &pd[j]
					break
				}
			}
		}

		// The relocation table for a program lives in the .rel section
		// directly following it.
		if i+1 < len(o.elf.Sections) && o.elf.Sections[i+1].Name == ".rel"+name {
			relData, err := o.elf.Sections[i+1].Data()
			if err != nil {
				return nil, fmt.Errorf("%w: error while reading section '.rel%s': %v", ErrMalformed, name, err)
			}
			if len(relData)%elfRelEntrySize != 0 {
				return nil, fmt.Errorf("%w: size of relocation table '.rel%s' not divisible by %d",
					ErrMalformed, name, elfRelEntrySize)
			}
			sec.relData = relData
			log.Tracef("Loaded relo section %d (.rel%s)", i+1, name)
		}

		cs = append(cs, sec)
	}

	return cs, nil
}
