package bpfloader

import (
	"fmt"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/AtomXCLO/android-system-bpf/bpfsys"
	"github.com/AtomXCLO/android-system-bpf/bpftypes"
	"github.com/AtomXCLO/android-system-bpf/kernelsupport"
)

// adjustMapDef computes the attributes actually requested from the kernel:
// DEVMAP_HASH does not exist before 5.4 and degrades to HASH (same userspace
// api, programs gated to <5.4 must not redirect through it), ring buffers
// need a page-size multiple so max_entries is raised to at least one page,
// and devmap variants are read-only from the program side so the kernel will
// set that flag whether we ask or not.
func adjustMapDef(def MapDef, kver kernelsupport.KernelVersion, pageSize uint32) MapDef {
	if def.Type == bpftypes.BPF_MAP_TYPE_DEVMAP_HASH && !kver.AtLeast(5, 4, 0) {
		def.Type = bpftypes.BPF_MAP_TYPE_HASH
	}

	// max_entries is a power of two and so is the page size, so raising the
	// floor is enough to make it a page-size multiple.
	if def.Type == bpftypes.BPF_MAP_TYPE_RINGBUF && def.MaxEntries < pageSize {
		def.MaxEntries = pageSize
	}

	if def.Type == bpftypes.BPF_MAP_TYPE_DEVMAP || def.Type == bpftypes.BPF_MAP_TYPE_DEVMAP_HASH {
		def.Flags |= bpftypes.BPFMapFlagsReadOnlyProg
	}

	return def
}

func getMapInfo(fd bpfsys.BPFfd) (bpftypes.BPFMapInfo, error) {
	mapInfo := bpftypes.BPFMapInfo{}
	err := bpfsys.ObjectGetInfoByFD(&bpfsys.BPFAttrGetInfoFD{
		BPFFD:   fd,
		Info:    uintptr(unsafe.Pointer(&mapInfo)),
		InfoLen: uint32(bpftypes.BPFMapInfoSize),
	})
	if err != nil {
		return mapInfo, fmt.Errorf("bpf obj get info by fd syscall error: %w", err)
	}

	return mapInfo, nil
}

// mapMatchesExpectations compares the live attributes of a map against the
// adjusted definition. This runs for reused and freshly created maps alike.
func mapMatchesExpectations(info bpftypes.BPFMapInfo, mapName string, def MapDef) bool {
	if info.Type == def.Type &&
		info.KeySize == def.KeySize &&
		info.ValueSize == def.ValueSize &&
		info.MaxEntries == def.MaxEntries &&
		bpftypes.BPFMapFlags(info.MapFlags) == def.Flags {
		return true
	}

	log.Errorf("bpf map name %s mismatch: desired/found: "+
		"type:%d/%d key:%d/%d value:%d/%d entries:%d/%d flags:%d/%d",
		mapName, def.Type, info.Type, def.KeySize, info.KeySize, def.ValueSize,
		info.ValueSize, def.MaxEntries, info.MaxEntries, def.Flags, info.MapFlags)
	return false
}

// createMaps installs every map the object defines, reusing pins that already
// exist. The returned fd vector is index-aligned with the returned name
// vector and with the records of the 'maps' section; version-gated slots hold
// the invalid-descriptor placeholder. On error all created descriptors are
// closed; pins already written survive, they are durable filesystem objects.
func createMaps(o *objectFile, objName, prefix string) (mapNames []string, mapFds []bpfsys.BPFfd, err error) {
	md, err := o.readMapDefs()
	if err != nil {
		return nil, nil, err
	}
	if len(md) == 0 {
		return nil, nil, nil // no maps to read
	}

	mapNames, err = o.sectionSymNames("maps", false)
	if err != nil {
		return nil, nil, err
	}
	if len(mapNames) != len(md) {
		return nil, nil, fmt.Errorf("%w: %d maps records but %d maps symbols",
			ErrMalformed, len(md), len(mapNames))
	}

	kver, err := kernelsupport.Version()
	if err != nil {
		return nil, nil, fmt.Errorf("unable to get kernel version: %w", err)
	}
	kvers := kver.Code()

	defer func() {
		if err != nil {
			closeMapFDs(mapFds)
			mapFds = nil
		}
	}()

	for i := range md {
		name := mapNames[i]

		if md[i].Zero != 0 {
			// The object is structurally wrong, nothing decoded from it can
			// be trusted and continuing the boot with it would be unsafe.
			log.Fatalf("map %s in %s has non-zero reserved field, aborting", name, o.path)
		}

		if kvers < md[i].MinKver {
			log.Debugf("skipping map %s which requires kernel version 0x%x >= 0x%x",
				name, kvers, md[i].MinKver)
			mapFds = append(mapFds, bpfsys.BPFfdInvalid)
			continue
		}

		if kvers >= md[i].MaxKver {
			log.Debugf("skipping map %s which requires kernel version 0x%x < 0x%x",
				name, kvers, md[i].MaxKver)
			mapFds = append(mapFds, bpfsys.BPFfdInvalid)
			continue
		}

		def := adjustMapDef(md[i], kver, kernelsupport.PageSize)

		mapPinLoc := mapPinPath(prefix, objName, name, def.Shared != 0)
		reuse := false
		var fd bpfsys.BPFfd

		if pathExists(mapPinLoc) {
			fd, err = mapRetrieveRO(mapPinLoc)
			if err != nil {
				return mapNames, mapFds, fmt.Errorf("retrieve map %s: %w", mapPinLoc, err)
			}
			log.Tracef("bpf_create_map reusing map %s, fd: %d", name, fd)
			reuse = true
		} else {
			fd, err = bpfsys.MapCreate(&bpfsys.BPFAttrMapCreate{
				MapType:    def.Type,
				KeySize:    def.KeySize,
				ValueSize:  def.ValueSize,
				MaxEntries: def.MaxEntries,
				MapFlags:   def.Flags,
				MapName:    objNameBytes(name),
			})
			if err != nil {
				return mapNames, mapFds, fmt.Errorf("create map %s: %w", name, err)
			}
			log.Tracef("bpf_create_map name %s, fd: %d", name, fd)
		}

		mapFds = append(mapFds, fd)

		info, infoErr := getMapInfo(fd)
		if infoErr != nil {
			err = fmt.Errorf("map %s: %w", name, infoErr)
			return mapNames, mapFds, err
		}

		// When reusing a pinned map the type/sizes/etc must be checked, but
		// for safety (since the reuse code path is rare) run the checks even
		// on a map we just created.
		if !mapMatchesExpectations(info, name, def) {
			err = fmt.Errorf("map %s: %w", name, ErrMapShapeMismatch)
			return mapNames, mapFds, err
		}

		if !reuse {
			if err = pinFD(mapPinLoc, fd); err != nil {
				err = fmt.Errorf("pin %s: %w", mapPinLoc, err)
				return mapNames, mapFds, err
			}
			if err = unix.Chmod(mapPinLoc, def.Mode); err != nil {
				err = fmt.Errorf("chmod(%s, 0%o): %w", mapPinLoc, def.Mode, err)
				return mapNames, mapFds, err
			}
			if err = unix.Chown(mapPinLoc, int(def.UID), int(def.GID)); err != nil {
				err = fmt.Errorf("chown(%s, %d, %d): %w", mapPinLoc, def.UID, def.GID, err)
				return mapNames, mapFds, err
			}
		}

		log.Debugf("map %s id %d", mapPinLoc, info.ID)
	}

	return mapNames, mapFds, nil
}

func closeMapFDs(fds []bpfsys.BPFfd) {
	for _, fd := range fds {
		if fd.Valid() {
			fd.Close()
		}
	}
}

func objNameBytes(name string) (cname [bpftypes.BPF_OBJ_NAME_LEN]byte) {
	// the kernel requires the last byte to stay 0x00, longer names truncate
	copy(cname[:bpftypes.BPF_OBJ_NAME_LEN-1], name)
	return cname
}
