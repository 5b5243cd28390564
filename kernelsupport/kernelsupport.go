// Package kernelsupport samples the properties of the running kernel the
// loader gates on: the kernel release version and the system page size.
package kernelsupport

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// PageSize is the system page size, sampled once at initialization. It never
// changes during process execution.
var PageSize = uint32(os.Getpagesize())

// KernelVersion is a kernel release version triplet.
type KernelVersion struct {
	Major int
	Minor int
	Patch int
}

// Code packs the version the way the KERNEL_VERSION macro does:
// (major << 16) | (minor << 8) | patch. Patch levels above 255 saturate, the
// kernel does the same since 4.19.
func (kv KernelVersion) Code() uint32 {
	patch := kv.Patch
	if patch > 255 {
		patch = 255
	}
	return uint32(kv.Major)<<16 | uint32(kv.Minor)<<8 | uint32(patch)
}

// AtLeast returns true if the 'kv' version is equal to or higher than the
// given version
func (kv KernelVersion) AtLeast(major, minor, patch int) bool {
	return kv.Code() >= KernelVersion{Major: major, Minor: minor, Patch: patch}.Code()
}

func (kv KernelVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", kv.Major, kv.Minor, kv.Patch)
}

var (
	versionOnce sync.Once
	version     KernelVersion
	versionErr  error
)

// Version returns the version of the kernel on which the process is running.
// The kernel is queried on first use, later calls return the sampled value.
func Version() (KernelVersion, error) {
	versionOnce.Do(func() {
		var utsname unix.Utsname
		if err := unix.Uname(&utsname); err != nil {
			versionErr = fmt.Errorf("error while calling uname: %w", err)
			return
		}

		release := utsname.Release[:]
		releaseBytes := make([]byte, 0, len(release))
		for _, v := range release {
			if v == 0x00 {
				break
			}
			releaseBytes = append(releaseBytes, byte(v))
		}

		version, versionErr = parseKernelRelease(string(releaseBytes))
	})

	return version, versionErr
}

func parseKernelRelease(release string) (version KernelVersion, err error) {
	// The base version is before the -, discard anything after the -
	base := strings.SplitN(release, "-", 2)[0]
	baseParts := strings.Split(base, ".")

	if len(baseParts) > 2 {
		version.Patch, err = strconv.Atoi(baseParts[2])
		if err != nil {
			return version, fmt.Errorf("error while parsing kernel patch version '%s': %w", baseParts[2], err)
		}
	}

	if len(baseParts) > 1 {
		version.Minor, err = strconv.Atoi(baseParts[1])
		if err != nil {
			return version, fmt.Errorf("error while parsing kernel minor version '%s': %w", baseParts[1], err)
		}
	}

	version.Major, err = strconv.Atoi(baseParts[0])
	if err != nil {
		return version, fmt.Errorf("error while parsing kernel major version '%s': %w", baseParts[0], err)
	}

	return version, nil
}
