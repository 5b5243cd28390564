package bpfloader

import "errors"

// The error kinds Load can return. Callers match them with errors.Is. Other
// failures wrap the error of the failing call instead: a
// *bpfsys.BPFSyscallError for bpf(2) commands, the plain errno or os error for
// file system calls such as chmod and chown.
var (
	// ErrOpenFailed means the object file could not be opened for reading.
	ErrOpenFailed = errors.New("object file unreadable")

	// ErrMalformed means the ELF structure is broken: short reads, truncated
	// headers, bad symbol references, or definition sections whose size is
	// not a multiple of the record size.
	ErrMalformed = errors.New("malformed ELF object")

	// ErrSectionNotFound is returned by section lookups when the named or
	// typed section is absent. An absent section is often legal (an object
	// without maps has no 'maps' section), so callers must distinguish it
	// from ErrMalformed.
	ErrSectionNotFound = errors.New("section not found")

	// ErrMissingLicense means the mandatory 'license' section is absent.
	ErrMissingLicense = errors.New("object has no license section")

	// ErrDisallowedProgramType means a code section resolved to a program
	// type outside the location's allow-list.
	ErrDisallowedProgramType = errors.New("program type not permitted at this location")

	// ErrMissingProgramDef means a code section kept for loading has no
	// matching <symbol>_def entry in the progs section.
	ErrMissingProgramDef = errors.New("code section has no program definition")

	// ErrMapShapeMismatch means the live attributes of a pinned map do not
	// match the desired attributes, typically a stale pin from an earlier,
	// structurally different build. Mirrors the classic ENOTUNIQ signal.
	ErrMapShapeMismatch = errors.New("pinned map does not match definition: NOT UNIQUE")
)
