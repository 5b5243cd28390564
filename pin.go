package bpfloader

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/AtomXCLO/android-system-bpf/bpfsys"
	"github.com/AtomXCLO/android-system-bpf/bpftypes"
	"github.com/AtomXCLO/android-system-bpf/internal/cstr"
)

// BPFSysPath is the path to the bpf FS used to pin objects to
const BPFSysPath = "/sys/fs/bpf/"

// pathToObjName derives the canonical object name used in pin names from the
// object's path: the final path component with the extension removed and any
// @-tag stripped, so 'foo@1.o' and 'foo.o' both yield 'foo'. The @-tag form
// exists to ship duplicate objects selected by loader version.
func pathToObjName(objPath string) string {
	name := path.Base(objPath)
	if i := strings.LastIndexByte(name, '.'); i != -1 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, '@'); i != -1 {
		name = name[:i]
	}
	return name
}

// mapPinPath is <bpf_fs>/<prefix>map_<objName>_<mapName>, except that maps
// shared across objects drop the object name.
func mapPinPath(prefix, objName, mapName string, shared bool) string {
	if shared {
		objName = ""
	}
	return BPFSysPath + prefix + "map_" + objName + "_" + mapName
}

// progPinPath is <bpf_fs>/<prefix>prog_<objName>_<progName>. The caller
// strips any $-suffix from progName beforehand.
func progPinPath(prefix, objName, progName string) string {
	return BPFSysPath + prefix + "prog_" + objName + "_" + progName
}

func pathExists(sysPath string) bool {
	return unix.Access(sysPath, unix.F_OK) == nil
}

// pinFD pins an eBPF object (map or program) identified by fd at the given
// bpf filesystem path. Missing intermediate directories (prefixes may contain
// slashes) are created.
func pinFD(sysPath string, fd bpfsys.BPFfd) error {
	err := os.MkdirAll(path.Dir(sysPath), 0644)
	if err != nil {
		return fmt.Errorf("error while making directories: %w, make sure bpffs is mounted at '%s'", err, BPFSysPath)
	}

	cPath := cstr.StringToCStrBytes(sysPath)

	err = bpfsys.ObjectPin(&bpfsys.BPFAttrObj{
		BPFfd:    fd,
		Pathname: uintptr(unsafe.Pointer(&cPath[0])),
	})
	runtime.KeepAlive(cPath)
	if err != nil {
		return fmt.Errorf("bpf syscall error: %w", err)
	}

	return nil
}

func objectGet(sysPath string, fileFlags uint32) (bpfsys.BPFfd, error) {
	cPath := cstr.StringToCStrBytes(sysPath)

	fd, err := bpfsys.ObjectGet(&bpfsys.BPFAttrObj{
		Pathname:  uintptr(unsafe.Pointer(&cPath[0])),
		FileFlags: fileFlags,
	})
	runtime.KeepAlive(cPath)
	if err != nil {
		return fd, fmt.Errorf("bpf obj get syscall error: %w", err)
	}

	return fd, nil
}

// mapRetrieveRO opens a pinned map read-only. Reused maps are never written
// through the descriptor the loader holds.
func mapRetrieveRO(sysPath string) (bpfsys.BPFfd, error) {
	return objectGet(sysPath, bpftypes.BPFObjRDONLY)
}

// retrieveProgram opens a pinned program.
func retrieveProgram(sysPath string) (bpfsys.BPFfd, error) {
	return objectGet(sysPath, 0)
}
