package bpfloader

import (
	"fmt"
	"runtime"
	"strings"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/AtomXCLO/android-system-bpf/bpfsys"
	"github.com/AtomXCLO/android-system-bpf/bpftypes"
	"github.com/AtomXCLO/android-system-bpf/internal/cstr"
	"github.com/AtomXCLO/android-system-bpf/kernelsupport"
)

// bpfVerifierLogSize is the size of the buffer handed to the verifier for its
// log.
const bpfVerifierLogSize = 1 << 20

// loadProgramAttempts bounds the EAGAIN retry loop around the verifier
// submission.
const loadProgramAttempts = 5

// kverInRange reports whether the packed kernel version falls inside a
// record's [min, max) gate.
func kverInRange(kver, minKver, maxKver uint32) bool {
	return kver >= minKver && kver < maxKver
}

// stripVersionSuffix drops a trailing $suffix from a program name. The suffix
// form ships duplicate programs conditionally loaded based on the running
// kernel version; they all pin under the suffix-less name while the in-kernel
// prog_name keeps the full one.
func stripVersionSuffix(name string) string {
	if i := strings.LastIndexByte(name, '$'); i != -1 {
		return name[:i]
	}
	return name
}

func getProgInfo(fd bpfsys.BPFfd) (bpftypes.BPFProgInfo, error) {
	progInfo := bpftypes.BPFProgInfo{}
	err := bpfsys.ObjectGetInfoByFD(&bpfsys.BPFAttrGetInfoFD{
		BPFFD:   fd,
		Info:    uintptr(unsafe.Pointer(&progInfo)),
		InfoLen: uint32(bpftypes.BPFProgInfoSize),
	})
	if err != nil {
		return progInfo, fmt.Errorf("bpf obj get info by fd syscall error: %w", err)
	}

	return progInfo, nil
}

// loadCodeSections submits every kept code section to the kernel verifier, or
// reuses the pinned program when one exists, and pins the result.
func loadCodeSections(objName string, cs []codeSection, license, prefix string) error {
	kver, err := kernelsupport.Version()
	if err != nil {
		return fmt.Errorf("unable to get kernel version: %w", err)
	}

	for i := range cs {
		if err := installCodeSection(objName, i, &cs[i], license, prefix, kver.Code()); err != nil {
			return err
		}
	}

	return nil
}

func installCodeSection(objName string, idx int, sec *codeSection, license, prefix string, kvers uint32) error {
	if sec.progDef == nil {
		log.Errorf("[%d] '%s' missing program definition! bad bpf.o build?", idx, sec.name)
		return fmt.Errorf("section '%s': %w", sec.name, ErrMissingProgramDef)
	}
	def := sec.progDef

	if !kverInRange(kvers, def.MinKver, def.MaxKver) {
		log.Debugf("skipping program cs[%d].name:%s min_kver:%x max_kver:%x (kvers:%x)",
			idx, sec.name, def.MinKver, def.MaxKver, kvers)
		return nil
	}

	progPinLoc := progPinPath(prefix, objName, stripVersionSuffix(sec.name))
	reuse := false
	var fd bpfsys.BPFfd
	var err error

	if pathExists(progPinLoc) {
		fd, err = retrieveProgram(progPinLoc)
		if err != nil {
			return fmt.Errorf("retrieve prog %s: %w", progPinLoc, err)
		}
		log.Tracef("bpf prog load reusing prog %s, fd: %d", progPinLoc, fd)
		reuse = true
	} else {
		fd, err = submitToVerifier(sec, license, kvers)
		if err != nil {
			if def.Optional != 0 {
				log.Warnf("failed program is marked optional - continuing...")
				return nil
			}
			log.Errorf("non-optional program failed to load.")
			return fmt.Errorf("load program '%s': %w", sec.name, err)
		}
	}
	defer fd.Close()

	if !reuse {
		if err := pinFD(progPinLoc, fd); err != nil {
			return fmt.Errorf("pin %s: %w", progPinLoc, err)
		}
		if err := unix.Chmod(progPinLoc, 0440); err != nil {
			return fmt.Errorf("chmod(%s, 0440): %w", progPinLoc, err)
		}
		if err := unix.Chown(progPinLoc, int(def.UID), int(def.GID)); err != nil {
			return fmt.Errorf("chown(%s, %d, %d): %w", progPinLoc, def.UID, def.GID, err)
		}
	}

	info, err := getProgInfo(fd)
	if err != nil {
		log.Errorf("get prog info failed: %v", err)
	} else {
		log.Debugf("prog %s id %d", progPinLoc, info.ID)
	}

	return nil
}

// submitToVerifier loads one program into the kernel. On failure the verifier
// log is emitted line by line at warning level before the error is returned.
func submitToVerifier(sec *codeSection, license string, kvers uint32) (bpfsys.BPFfd, error) {
	logBuf := make([]byte, bpfVerifierLogSize)
	licenseCStr := cstr.StringToCStrBytes(license)

	attr := bpfsys.BPFAttrProgramLoad{
		ProgramType:   sec.progType,
		InsnCnt:       uint32(len(sec.insns)),
		Insns:         uintptr(unsafe.Pointer(&sec.insns[0])),
		License:       uintptr(unsafe.Pointer(&licenseCStr[0])),
		LogLevel:      bpftypes.BPFLogLevelBasic,
		LogSize:       bpfVerifierLogSize,
		LogBuf:        uintptr(unsafe.Pointer(&logBuf[0])),
		KernelVersion: kvers,
		// prog_name keeps the pre-strip section name, only pins drop the
		// $-suffix
		ProgName:           objNameBytes(sec.name),
		ExpectedAttachType: sec.expectedAttachType,
	}

	var fd bpfsys.BPFfd
	var err error
	for attempt := 0; attempt < loadProgramAttempts; attempt++ {
		fd, err = bpfsys.LoadProgram(&attr)
		if err == nil {
			break
		}

		// EAGAIN basically means "there is no data available right now, try again later"
		if sysErr, ok := err.(*bpfsys.BPFSyscallError); !ok || sysErr.Errno != unix.EAGAIN {
			break
		}
	}
	runtime.KeepAlive(sec.insns)
	runtime.KeepAlive(licenseCStr)
	runtime.KeepAlive(logBuf)

	if err != nil {
		log.Warnf("BPF_PROG_LOAD call for %s returned: %v", sec.name, err)

		log.Warnf("BPF_PROG_LOAD - BEGIN log_buf contents:")
		for _, line := range strings.Split(cstr.BytesToString(logBuf), "\n") {
			log.Warnf("%s", line)
		}
		log.Warnf("BPF_PROG_LOAD - END log_buf contents.")

		return fd, err
	}

	return fd, nil
}
