// Package bpftypes contains the kernel ABI enumerators and structures the
// loader exchanges with the bpf syscall.
package bpftypes

import "unsafe"

const (
	// BPF_OBJ_NAME_LEN the max length of an object name as defined by the linux kernel
	// The actual size of the string is 16 bytes, but the last byte must always be 0x00
	BPF_OBJ_NAME_LEN = 16
)

// BPFCommand is a enum which describes a number of different commands which can be sent to the kernel
// via the bpf syscall.
// From bpf_cmd https://github.com/torvalds/linux/blob/master/include/uapi/linux/bpf.h
type BPFCommand int

const (
	// BPF_MAP_CREATE creates a new map
	BPF_MAP_CREATE BPFCommand = iota
	// BPF_MAP_LOOKUP_ELEM looks up the value stored in a map for a given key
	BPF_MAP_LOOKUP_ELEM
	// BPF_MAP_UPDATE_ELEM changes the value in a map for a given key
	BPF_MAP_UPDATE_ELEM
	// BPF_MAP_DELETE_ELEM deletes a key and value form a map
	BPF_MAP_DELETE_ELEM
	// BPF_MAP_GET_NEXT_KEY is used to iterate over all keys in a map one key at a time
	BPF_MAP_GET_NEXT_KEY
	// BPF_PROG_LOAD loads a program into the kernel
	BPF_PROG_LOAD
	// BPF_OBJ_PIN pins a eBPF object(map, program, link) to the bpf filesystem
	BPF_OBJ_PIN
	// BPF_OBJ_GET gets a file descriptor for a pinned object
	BPF_OBJ_GET
	// BPF_PROG_ATTACH attaches certain program types to a specified location
	BPF_PROG_ATTACH
	// BPF_PROG_DETACH detaches certain program types from their attached locations
	BPF_PROG_DETACH
	// BPF_PROG_TEST_RUN test a loaded program without attaching it
	BPF_PROG_TEST_RUN
	// BPF_PROG_GET_NEXT_ID is used to iterate over loaded programs
	BPF_PROG_GET_NEXT_ID
	// BPF_MAP_GET_NEXT_ID is used to iterate over loaded maps
	BPF_MAP_GET_NEXT_ID
	// BPF_PROG_GET_FD_BY_ID returns a file descriptor of a loaded program by its ID
	BPF_PROG_GET_FD_BY_ID
	// BPF_MAP_GET_FD_BY_ID returns a file descriptor of a loaded map by its ID
	BPF_MAP_GET_FD_BY_ID
	// BPF_OBJ_GET_INFO_BY_FD returns info about loaded eBPF objects by their file descriptor
	BPF_OBJ_GET_INFO_BY_FD
)

var bpfCommandToStr = map[BPFCommand]string{
	BPF_MAP_CREATE:         "BPF_MAP_CREATE",
	BPF_MAP_LOOKUP_ELEM:    "BPF_MAP_LOOKUP_ELEM",
	BPF_MAP_UPDATE_ELEM:    "BPF_MAP_UPDATE_ELEM",
	BPF_MAP_DELETE_ELEM:    "BPF_MAP_DELETE_ELEM",
	BPF_MAP_GET_NEXT_KEY:   "BPF_MAP_GET_NEXT_KEY",
	BPF_PROG_LOAD:          "BPF_PROG_LOAD",
	BPF_OBJ_PIN:            "BPF_OBJ_PIN",
	BPF_OBJ_GET:            "BPF_OBJ_GET",
	BPF_PROG_ATTACH:        "BPF_PROG_ATTACH",
	BPF_PROG_DETACH:        "BPF_PROG_DETACH",
	BPF_PROG_TEST_RUN:      "BPF_PROG_TEST_RUN",
	BPF_PROG_GET_NEXT_ID:   "BPF_PROG_GET_NEXT_ID",
	BPF_MAP_GET_NEXT_ID:    "BPF_MAP_GET_NEXT_ID",
	BPF_PROG_GET_FD_BY_ID:  "BPF_PROG_GET_FD_BY_ID",
	BPF_MAP_GET_FD_BY_ID:   "BPF_MAP_GET_FD_BY_ID",
	BPF_OBJ_GET_INFO_BY_FD: "BPF_OBJ_GET_INFO_BY_FD",
}

func (cmd BPFCommand) String() string {
	str := bpfCommandToStr[cmd]
	if str == "" {
		return "UNKNOWN"
	}
	return str
}

// BPFMapType is an enum type which describes a type of map
// From bpf_map_type https://github.com/torvalds/linux/blob/master/include/uapi/linux/bpf.h
type BPFMapType uint32

const (
	// BPF_MAP_TYPE_UNSPEC is the default value for a map type, lacking a type is invalid
	BPF_MAP_TYPE_UNSPEC BPFMapType = iota
	// BPF_MAP_TYPE_HASH is a generic hash-table keyed map
	BPF_MAP_TYPE_HASH
	// BPF_MAP_TYPE_ARRAY is a generic array map, keys are 4-byte indexes
	BPF_MAP_TYPE_ARRAY
	// BPF_MAP_TYPE_PROG_ARRAY holds file descriptors to other eBPF programs, used for tail calls
	BPF_MAP_TYPE_PROG_ARRAY
	// BPF_MAP_TYPE_PERF_EVENT_ARRAY holds file descriptors of perf events
	BPF_MAP_TYPE_PERF_EVENT_ARRAY
	// BPF_MAP_TYPE_PERCPU_HASH is a hash map with a separate value per logical CPU
	BPF_MAP_TYPE_PERCPU_HASH
	// BPF_MAP_TYPE_PERCPU_ARRAY is an array map with a separate value per logical CPU
	BPF_MAP_TYPE_PERCPU_ARRAY
	// BPF_MAP_TYPE_STACK_TRACE holds stack traces captured by the stackmap helpers
	BPF_MAP_TYPE_STACK_TRACE
	// BPF_MAP_TYPE_CGROUP_ARRAY holds file descriptors to cgroups
	BPF_MAP_TYPE_CGROUP_ARRAY
	// BPF_MAP_TYPE_LRU_HASH is a hash map which evicts the least recently used entry when full
	BPF_MAP_TYPE_LRU_HASH
	// BPF_MAP_TYPE_LRU_PERCPU_HASH is the per-CPU variant of the LRU hash
	BPF_MAP_TYPE_LRU_PERCPU_HASH
	// BPF_MAP_TYPE_LPM_TRIE is a longest-prefix-match trie, typically used for IP routing
	BPF_MAP_TYPE_LPM_TRIE
	// BPF_MAP_TYPE_ARRAY_OF_MAPS is an array map whose values are file descriptors of other maps
	BPF_MAP_TYPE_ARRAY_OF_MAPS
	// BPF_MAP_TYPE_HASH_OF_MAPS is a hash map whose values are file descriptors of other maps
	BPF_MAP_TYPE_HASH_OF_MAPS
	// BPF_MAP_TYPE_DEVMAP holds network device references, used with bpf_redirect_map
	BPF_MAP_TYPE_DEVMAP
	// BPF_MAP_TYPE_SOCKMAP holds socket references
	BPF_MAP_TYPE_SOCKMAP
	// BPF_MAP_TYPE_CPUMAP holds per-CPU queues for XDP redirection
	BPF_MAP_TYPE_CPUMAP
	// BPF_MAP_TYPE_XSKMAP holds AF_XDP socket references
	BPF_MAP_TYPE_XSKMAP
	// BPF_MAP_TYPE_SOCKHASH is the hash keyed variant of the sockmap
	BPF_MAP_TYPE_SOCKHASH
	// BPF_MAP_TYPE_CGROUP_STORAGE is local storage attached to a cgroup
	BPF_MAP_TYPE_CGROUP_STORAGE
	// BPF_MAP_TYPE_REUSEPORT_SOCKARRAY holds sockets taking part in SO_REUSEPORT selection
	BPF_MAP_TYPE_REUSEPORT_SOCKARRAY
	// BPF_MAP_TYPE_PERCPU_CGROUP_STORAGE is the per-CPU variant of cgroup storage
	BPF_MAP_TYPE_PERCPU_CGROUP_STORAGE
	// BPF_MAP_TYPE_QUEUE is a FIFO queue map without keys
	BPF_MAP_TYPE_QUEUE
	// BPF_MAP_TYPE_STACK is a LIFO stack map without keys
	BPF_MAP_TYPE_STACK
	// BPF_MAP_TYPE_SK_STORAGE is local storage attached to a socket
	BPF_MAP_TYPE_SK_STORAGE
	// BPF_MAP_TYPE_DEVMAP_HASH is the hash keyed variant of the devmap, available since 5.4
	BPF_MAP_TYPE_DEVMAP_HASH
	// BPF_MAP_TYPE_STRUCT_OPS holds a kernel struct-ops implementation
	BPF_MAP_TYPE_STRUCT_OPS
	// BPF_MAP_TYPE_RINGBUF is a MPSC ring buffer, max_entries is its byte size
	// and must be a page-size multiple
	BPF_MAP_TYPE_RINGBUF
)

var bpfMapTypeToStr = map[BPFMapType]string{
	BPF_MAP_TYPE_UNSPEC:                "BPF_MAP_TYPE_UNSPEC",
	BPF_MAP_TYPE_HASH:                  "BPF_MAP_TYPE_HASH",
	BPF_MAP_TYPE_ARRAY:                 "BPF_MAP_TYPE_ARRAY",
	BPF_MAP_TYPE_PROG_ARRAY:            "BPF_MAP_TYPE_PROG_ARRAY",
	BPF_MAP_TYPE_PERF_EVENT_ARRAY:      "BPF_MAP_TYPE_PERF_EVENT_ARRAY",
	BPF_MAP_TYPE_PERCPU_HASH:           "BPF_MAP_TYPE_PERCPU_HASH",
	BPF_MAP_TYPE_PERCPU_ARRAY:          "BPF_MAP_TYPE_PERCPU_ARRAY",
	BPF_MAP_TYPE_STACK_TRACE:           "BPF_MAP_TYPE_STACK_TRACE",
	BPF_MAP_TYPE_CGROUP_ARRAY:          "BPF_MAP_TYPE_CGROUP_ARRAY",
	BPF_MAP_TYPE_LRU_HASH:              "BPF_MAP_TYPE_LRU_HASH",
	BPF_MAP_TYPE_LRU_PERCPU_HASH:       "BPF_MAP_TYPE_LRU_PERCPU_HASH",
	BPF_MAP_TYPE_LPM_TRIE:              "BPF_MAP_TYPE_LPM_TRIE",
	BPF_MAP_TYPE_ARRAY_OF_MAPS:         "BPF_MAP_TYPE_ARRAY_OF_MAPS",
	BPF_MAP_TYPE_HASH_OF_MAPS:          "BPF_MAP_TYPE_HASH_OF_MAPS",
	BPF_MAP_TYPE_DEVMAP:                "BPF_MAP_TYPE_DEVMAP",
	BPF_MAP_TYPE_SOCKMAP:               "BPF_MAP_TYPE_SOCKMAP",
	BPF_MAP_TYPE_CPUMAP:                "BPF_MAP_TYPE_CPUMAP",
	BPF_MAP_TYPE_XSKMAP:                "BPF_MAP_TYPE_XSKMAP",
	BPF_MAP_TYPE_SOCKHASH:              "BPF_MAP_TYPE_SOCKHASH",
	BPF_MAP_TYPE_CGROUP_STORAGE:        "BPF_MAP_TYPE_CGROUP_STORAGE",
	BPF_MAP_TYPE_REUSEPORT_SOCKARRAY:   "BPF_MAP_TYPE_REUSEPORT_SOCKARRAY",
	BPF_MAP_TYPE_PERCPU_CGROUP_STORAGE: "BPF_MAP_TYPE_PERCPU_CGROUP_STORAGE",
	BPF_MAP_TYPE_QUEUE:                 "BPF_MAP_TYPE_QUEUE",
	BPF_MAP_TYPE_STACK:                 "BPF_MAP_TYPE_STACK",
	BPF_MAP_TYPE_SK_STORAGE:            "BPF_MAP_TYPE_SK_STORAGE",
	BPF_MAP_TYPE_DEVMAP_HASH:           "BPF_MAP_TYPE_DEVMAP_HASH",
	BPF_MAP_TYPE_STRUCT_OPS:            "BPF_MAP_TYPE_STRUCT_OPS",
	BPF_MAP_TYPE_RINGBUF:               "BPF_MAP_TYPE_RINGBUF",
}

func (mt BPFMapType) String() string {
	str := bpfMapTypeToStr[mt]
	if str == "" {
		return "UNKNOWN"
	}
	return str
}

// BPFProgType is an enum which describes a type of eBPF program
// From bpf_prog_type https://github.com/torvalds/linux/blob/master/include/uapi/linux/bpf.h
//
// Only the types up to the highest one the loader's section table can produce
// are named; the dynamic fuse type is whatever integer the kernel advertises
// and has no name here.
type BPFProgType uint32

const (
	// BPF_PROG_TYPE_UNSPEC is the default/zero value, a section resolving to
	// it is not loadable
	BPF_PROG_TYPE_UNSPEC BPFProgType = iota
	// BPF_PROG_TYPE_SOCKET_FILTER program type for classic socket filtering
	BPF_PROG_TYPE_SOCKET_FILTER
	// BPF_PROG_TYPE_KPROBE program type for kprobe, kretprobe, uprobe and uretprobe hooks
	BPF_PROG_TYPE_KPROBE
	// BPF_PROG_TYPE_SCHED_CLS program type for tc classifiers
	BPF_PROG_TYPE_SCHED_CLS
	// BPF_PROG_TYPE_SCHED_ACT program type for tc actions
	BPF_PROG_TYPE_SCHED_ACT
	// BPF_PROG_TYPE_TRACEPOINT program type for static kernel tracepoints
	BPF_PROG_TYPE_TRACEPOINT
	// BPF_PROG_TYPE_XDP program type for the express data path
	BPF_PROG_TYPE_XDP
	// BPF_PROG_TYPE_PERF_EVENT program type for perf event handlers
	BPF_PROG_TYPE_PERF_EVENT
)

var bpfProgTypeToStr = map[BPFProgType]string{
	BPF_PROG_TYPE_UNSPEC:        "BPF_PROG_TYPE_UNSPEC",
	BPF_PROG_TYPE_SOCKET_FILTER: "BPF_PROG_TYPE_SOCKET_FILTER",
	BPF_PROG_TYPE_KPROBE:        "BPF_PROG_TYPE_KPROBE",
	BPF_PROG_TYPE_SCHED_CLS:     "BPF_PROG_TYPE_SCHED_CLS",
	BPF_PROG_TYPE_SCHED_ACT:     "BPF_PROG_TYPE_SCHED_ACT",
	BPF_PROG_TYPE_TRACEPOINT:    "BPF_PROG_TYPE_TRACEPOINT",
	BPF_PROG_TYPE_XDP:           "BPF_PROG_TYPE_XDP",
	BPF_PROG_TYPE_PERF_EVENT:    "BPF_PROG_TYPE_PERF_EVENT",
}

func (pt BPFProgType) String() string {
	str := bpfProgTypeToStr[pt]
	if str == "" {
		return "UNKNOWN"
	}
	return str
}

// BPFAttachType describes the attach point a program expects at load time.
// From bpf_attach_type https://github.com/torvalds/linux/blob/master/include/uapi/linux/bpf.h
type BPFAttachType uint32

const (
	// BPF_ATTACH_TYPE_UNSPEC is the zero value. The kernel enum has no
	// unspecified member (0 is BPF_CGROUP_INET_INGRESS); none of the program
	// types this loader handles interprets the field, so zero acts as
	// "unspecified".
	BPF_ATTACH_TYPE_UNSPEC BPFAttachType = 0
)

// BPFMapFlags are the flags valid in the map_flags field of map creation and
// the map info structure.
type BPFMapFlags uint32

const (
	// BPFMapFlagsNoPreAlloc signals map memory should be allocated at runtime, not creation time
	BPFMapFlagsNoPreAlloc BPFMapFlags = 1 << iota
	// BPFMapFlagsNoCommonLRU gives LRU maps a separate LRU list per CPU
	BPFMapFlagsNoCommonLRU
	// BPFMapFlagsNUMANode makes the numa_node attribute valid
	BPFMapFlagsNUMANode
	// BPFMapFlagsReadOnly denies writes from the syscall side
	BPFMapFlagsReadOnly
	// BPFMapFlagsWriteOnly denies reads from the syscall side
	BPFMapFlagsWriteOnly
	// BPFMapFlagsStackBuildID stores build-id+offset stack traces instead of raw addresses
	BPFMapFlagsStackBuildID
	// BPFMapFlagsZeroSeed seeds the map hash function with 0, for testing only
	BPFMapFlagsZeroSeed
	// BPFMapFlagsReadOnlyProg denies writes from the eBPF program side
	BPFMapFlagsReadOnlyProg
	// BPFMapFlagsWriteOnlyProg denies reads from the eBPF program side
	BPFMapFlagsWriteOnlyProg
	// BPFMapFlagsClone clones the map on socket clone
	BPFMapFlagsClone
	// BPFMapFlagsMMapable allows the map memory to be mmap'ed into userspace
	BPFMapFlagsMMapable
)

// BPFObjFileFlags are the file_flags of BPF_OBJ_GET. They share the numeric
// values of the syscall-side access restriction map flags.
const (
	// BPFObjRDONLY requests a read-only file descriptor for a pinned object
	BPFObjRDONLY = uint32(BPFMapFlagsReadOnly)
	// BPFObjWRONLY requests a write-only file descriptor for a pinned object
	BPFObjWRONLY = uint32(BPFMapFlagsWriteOnly)
)

// BPFLogLevel the verifier log level
type BPFLogLevel uint32

const (
	// BPFLogLevelDisabled disables the verifier log
	BPFLogLevelDisabled BPFLogLevel = iota
	// BPFLogLevelBasic instructs the verifier to output basic logs
	BPFLogLevelBasic
	// BPFLogLevelVerbose the most verbose log level available
	BPFLogLevelVerbose
)

// BPFMapInfoSize is the size of the BPFMapInfo struct in bytes
var BPFMapInfoSize = int(unsafe.Sizeof(BPFMapInfo{}))

// BPFMapInfo is the structure BPF_OBJ_GET_INFO_BY_FD fills for map file
// descriptors. Only the fixed-size leading fields the loader inspects are
// declared; the kernel truncates its copy to the length we pass.
type BPFMapInfo struct {
	Type       BPFMapType
	ID         uint32
	KeySize    uint32
	ValueSize  uint32
	MaxEntries uint32
	MapFlags   uint32
	Name       [BPF_OBJ_NAME_LEN]byte
	IfIndex    uint32
	NetNSDev   uint64
	NetNSIno   uint64
}

// BPFProgInfoSize is the size of the BPFProgInfo struct in bytes
var BPFProgInfoSize = int(unsafe.Sizeof(BPFProgInfo{}))

// BPFProgInfo is the leading fixed-size part of the structure
// BPF_OBJ_GET_INFO_BY_FD fills for program file descriptors. The buffer
// pointers stay zero so the kernel skips the variable-length parts.
type BPFProgInfo struct {
	Type            BPFProgType
	ID              uint32
	Tag             [8]byte
	JitedProgLen    uint32
	XlatedProgLen   uint32
	JitedProgInsns  uint64
	XlatedProgInsns uint64
	LoadTime        uint64
	CreatedByUID    uint32
	NrMapIDs        uint32
	MapIDs          uint64
	Name            [BPF_OBJ_NAME_LEN]byte
}
