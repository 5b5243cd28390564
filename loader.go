// Package bpfloader installs compiled eBPF object files into the kernel at
// boot. For each object it decodes the map and program definitions, creates
// or reuses pinned maps, patches map file descriptors into the program
// bytecode and submits the programs to the kernel verifier, pinning every
// resulting kernel handle to the bpf filesystem so unrelated processes can
// attach or read them later.
//
// The loader only loads and pins; attaching programs to their hooks is the
// business of whoever picks the pins up.
package bpfloader

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/AtomXCLO/android-system-bpf/bpftypes"
	"github.com/AtomXCLO/android-system-bpf/internal/cstr"
)

// Location describes where one object's pins land and which program types it
// may carry.
type Location struct {
	// Prefix is prepended verbatim to every pin filename. It may be empty
	// and may contain slashes to pin into a subdirectory.
	Prefix string
	// AllowedProgTypes restricts the program types the object may contain.
	// nil permits any recognized type. The unspecified value acts as a
	// sentinel for whatever the dynamic fuse lookup returns.
	AllowedProgTypes []bpftypes.BPFProgType
}

// Load runs the whole pipeline for the object file at path: classify code
// sections, install maps, apply relocations, install programs. The returned
// bool reports whether the object declares itself critical via a 'critical'
// section; it is meaningful even when err is non-nil so the caller can decide
// how hard to fail.
//
// Loading is idempotent: a pinned kernel object whose path already exists is
// reused, never overwritten, so re-running the loader against an already
// populated bpf filesystem is safe.
func Load(path string, location Location) (isCritical bool, err error) {
	o, err := openObjectFile(path)
	if err != nil {
		return false, err
	}
	defer o.Close()

	critical, err := o.sectionByName("critical")
	isCritical = err == nil

	license, err := o.sectionByName("license")
	if err != nil {
		log.Errorf("Couldn't find license in %s", path)
		if errors.Is(err, ErrSectionNotFound) {
			return isCritical, fmt.Errorf("%s: %w", path, ErrMissingLicense)
		}
		return isCritical, err
	}
	licenseStr := cstr.BytesToString(license)

	if isCritical {
		log.Infof("Loading critical for %s ELF object %s with license %s",
			cstr.BytesToString(critical), path, licenseStr)
	} else {
		log.Infof("Loading optional ELF object %s with license %s", path, licenseStr)
	}

	cs, err := readCodeSections(o, location.AllowedProgTypes)
	if err != nil {
		log.Errorf("Couldn't read all code sections in %s: %v", path, err)
		return isCritical, err
	}

	objName := pathToObjName(path)

	mapNames, mapFds, err := createMaps(o, objName, location.Prefix)
	if err != nil {
		log.Errorf("Failed to create maps in %s: %v", path, err)
		return isCritical, err
	}
	defer closeMapFDs(mapFds)

	for i, fd := range mapFds {
		log.Tracef("map_fd found at %d is %d in %s", i, int32(fd), path)
	}

	if err := applyMapRelocations(o, mapNames, mapFds, cs); err != nil {
		return isCritical, err
	}

	if err := loadCodeSections(objName, cs, licenseStr, location.Prefix); err != nil {
		log.Errorf("Failed to load programs in %s: %v", path, err)
		return isCritical, err
	}

	return isCritical, nil
}
