package bpfsys

import (
	"unsafe"

	"github.com/AtomXCLO/android-system-bpf/bpftypes"
)

type BPFAttribute interface {
	ToPtr() unsafe.Pointer
	Size() uintptr
}

// BPFAttrMapCreate is the attribute for the BPF_MAP_CREATE command
type BPFAttrMapCreate struct {
	MapType    bpftypes.BPFMapType  // one of enum bpf_map_type
	KeySize    uint32               // size of key in bytes
	ValueSize  uint32               // size of value in bytes
	MaxEntries uint32               // max number of entries in a map
	MapFlags   bpftypes.BPFMapFlags // BPF_MAP_CREATE related flags
	InnerMapFD BPFfd                // fd pointing to the inner map
	NumaNode   uint32               // numa node (effective only if BPF_F_NUMA_NODE is set)
	MapName    [bpftypes.BPF_OBJ_NAME_LEN]byte
	MapIFIndex uint32 // ifindex of netdev to create on
}

func (amc *BPFAttrMapCreate) ToPtr() unsafe.Pointer {
	return unsafe.Pointer(amc)
}

func (amc *BPFAttrMapCreate) Size() uintptr {
	return unsafe.Sizeof(*amc)
}

// BPFAttrProgramLoad is the attribute for the BPF_PROG_LOAD command
type BPFAttrProgramLoad struct {
	ProgramType   bpftypes.BPFProgType // one of enum bpf_prog_type
	InsnCnt       uint32               // the amount of bpf instructions in program
	Insns         uintptr              // pointer to the bpf instructions
	License       uintptr              // pointer to string containing the license
	LogLevel      bpftypes.BPFLogLevel // verbosity level of verifier
	LogSize       uint32               // size of user buffer
	LogBuf        uintptr              // pointer to buffer where verifier log will be written to
	KernelVersion uint32               // kernel version the program claims, checked for kprobe programs
	ProgFlags     uint32
	ProgName      [bpftypes.BPF_OBJ_NAME_LEN]byte
	ProgIFIndex   uint32 // ifindex of netdev to prep for

	// For some prog types expected attach type must be known at
	// load time to verify attach type specific parts of prog
	// (context accesses, allowed helpers, etc).
	ExpectedAttachType bpftypes.BPFAttachType
}

func (apl *BPFAttrProgramLoad) ToPtr() unsafe.Pointer {
	return unsafe.Pointer(apl)
}

func (apl *BPFAttrProgramLoad) Size() uintptr {
	return unsafe.Sizeof(*apl)
}

// BPFAttrObj is used as attribute in the BPF_OBJ_* commands
type BPFAttrObj struct {
	Pathname  uintptr // pointer to cstring
	BPFfd     BPFfd
	FileFlags uint32
}

func (ao *BPFAttrObj) ToPtr() unsafe.Pointer {
	return unsafe.Pointer(ao)
}

func (ao *BPFAttrObj) Size() uintptr {
	return unsafe.Sizeof(*ao)
}

// BPFAttrGetInfoFD is used as attribute in the BPF_OBJ_GET_INFO_BY_FD command
type BPFAttrGetInfoFD struct {
	BPFFD   BPFfd
	InfoLen uint32  // Length of the info buffer
	Info    uintptr // Pointer to buffer where the kernel will store info
}

func (agi *BPFAttrGetInfoFD) ToPtr() unsafe.Pointer {
	return unsafe.Pointer(agi)
}

func (agi *BPFAttrGetInfoFD) Size() uintptr {
	return unsafe.Sizeof(*agi)
}
