package bpfsys

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/AtomXCLO/android-system-bpf/bpftypes"
)

// ENOTSUPP - Operation is not supported
var ENOTSUPP = syscall.Errno(524)

// a map of string translations for syscall errors which are not included in the standard library
var nonStdErrors = map[syscall.Errno]string{
	ENOTSUPP: "Operation is not supported",
}

type BPFSyscallError struct {
	// The underlaying syscall error number
	Errno syscall.Errno
	// Context specific error information since the same code can have different
	// meaning depending on context
	Err string
}

func (e *BPFSyscallError) Error() string {
	errStr := nonStdErrors[e.Errno]
	if errStr == "" {
		errStr = e.Errno.Error()
	}

	if e.Err == "" {
		return fmt.Sprintf("%s (%d)", errStr, e.Errno)
	}

	return fmt.Sprintf("%s (%s)(%d)", e.Err, errStr, e.Errno)
}

// BPFfd is an alias of a file descriptor returned by bpf to identify a map or program.
// Since not all the usual file descriptor functions are available to these types of fds.
//
// An eBPF object is deallocated only after all file descriptors referring
// to the object have been closed and no references remain pinned to the
// filesystem or attached (for example, bound to a program or device).
type BPFfd uint32

// BPFfdInvalid is the value of a file descriptor slot which holds no
// descriptor, for example a map skipped by its kernel version gate. Its
// integer value is -1 so a relocation against it produces an immediate the
// verifier will reject.
const BPFfdInvalid = ^BPFfd(0)

// Valid returns false for the invalid-descriptor placeholder.
func (fd BPFfd) Valid() bool {
	return fd != BPFfdInvalid
}

// Close closes a file descriptor
func (fd BPFfd) Close() error {
	_, _, errno := unix.Syscall(unix.SYS_CLOSE, uintptr(fd), 0, 0)
	if errno != 0 {
		return &BPFSyscallError{
			Errno: errno,
			Err: map[syscall.Errno]string{
				unix.EBADF: "fd isn't a valid open file descriptor",
				unix.EINTR: "The Close() call was interrupted by a signal; see signal(7)",
				unix.EIO:   "An I/O error occurred",
			}[errno],
		}
	}

	return nil
}

// Bpf is a wrapper around the BPF syscall, so a very low level function.
// It is not recommended to use it directly unless you know what you are doing
func Bpf(cmd bpftypes.BPFCommand, attr BPFAttribute, size int) (fd BPFfd, err error) {
	r0, _, errno := unix.Syscall(unix.SYS_BPF, uintptr(cmd), uintptr(attr.ToPtr()), uintptr(size))
	if errno != 0 {
		err = &BPFSyscallError{
			Errno: errno,
		}
	}

	return BPFfd(r0), err
}

// Wraps Bpf but discards the first return value
func bpfNoReturn(cmd bpftypes.BPFCommand, attr BPFAttribute, size int) error {
	_, err := Bpf(cmd, attr, size)
	return err
}

// MapCreate creates a map and returns a file descriptor that refers to the
// map. The close-on-exec file descriptor flag (see fcntl(2) in linux man pages)
// is automatically enabled for the new file descriptor.
//
// Calling Close on the returned file descriptor will delete the map, unless
// it has been pinned or is otherwise referenced.
func MapCreate(attr *BPFAttrMapCreate) (fd BPFfd, err error) {
	return Bpf(bpftypes.BPF_MAP_CREATE, attr, int(attr.Size()))
}

// LoadProgram submits a program to the kernel verifier, returning a new file
// descriptor associated with the program on success. The verifier writes its
// log to attr.LogBuf regardless of the outcome when attr.LogLevel is
// non-zero.
func LoadProgram(attr *BPFAttrProgramLoad) (fd BPFfd, err error) {
	return Bpf(bpftypes.BPF_PROG_LOAD, attr, int(attr.Size()))
}

// ObjectPin pins the eBPF object referred to by attr.BPFfd to the bpf
// filesystem path in attr.Pathname
func ObjectPin(attr *BPFAttrObj) error {
	return bpfNoReturn(bpftypes.BPF_OBJ_PIN, attr, int(attr.Size()))
}

// ObjectGet opens a file descriptor for the eBPF object pinned to the path in
// attr.Pathname. attr.FileFlags may restrict the access mode of the new
// descriptor.
func ObjectGet(attr *BPFAttrObj) (fd BPFfd, err error) {
	return Bpf(bpftypes.BPF_OBJ_GET, attr, int(attr.Size()))
}

// ObjectGetInfoByFD obtains information about the eBPF object corresponding
// to attr.BPFFD. The kernel fills at most attr.InfoLen bytes of the buffer at
// attr.Info and updates attr.InfoLen with the amount it actually wrote.
func ObjectGetInfoByFD(attr *BPFAttrGetInfoFD) error {
	return bpfNoReturn(bpftypes.BPF_OBJ_GET_INFO_BY_FD, attr, int(attr.Size()))
}
