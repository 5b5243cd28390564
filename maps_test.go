package bpfloader

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/AtomXCLO/android-system-bpf/bpftypes"
	"github.com/AtomXCLO/android-system-bpf/kernelsupport"
)

func TestKverInRange(t *testing.T) {
	tests := []struct {
		name           string
		kver, min, max uint32
		want           bool
	}{
		{"inside", 0x50a00, 0x40e00, 0xffffffff, true},
		{"at lower bound", 0x40e00, 0x40e00, 0xffffffff, true},
		{"below lower bound", 0x40d00, 0x40e00, 0xffffffff, false},
		{"at upper bound", 0x50400, 0x40e00, 0x50400, false},
		{"unbounded", 0x50a00, 0, 0xffffffff, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kverInRange(tt.kver, tt.min, tt.max); got != tt.want {
				t.Fatalf("kverInRange(0x%x, 0x%x, 0x%x) = %v, want %v",
					tt.kver, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestAdjustMapDef(t *testing.T) {
	const pageSize = 4096

	kver54 := kernelsupport.KernelVersion{Major: 5, Minor: 4}
	kver419 := kernelsupport.KernelVersion{Major: 4, Minor: 19}

	tests := []struct {
		name string
		def  MapDef
		kver kernelsupport.KernelVersion
		want MapDef
	}{
		{
			name: "plain hash untouched",
			def:  MapDef{Type: bpftypes.BPF_MAP_TYPE_HASH, KeySize: 4, ValueSize: 4, MaxEntries: 64},
			kver: kver54,
			want: MapDef{Type: bpftypes.BPF_MAP_TYPE_HASH, KeySize: 4, ValueSize: 4, MaxEntries: 64},
		},
		{
			name: "ringbuf raised to page size",
			def:  MapDef{Type: bpftypes.BPF_MAP_TYPE_RINGBUF, MaxEntries: 512},
			kver: kver54,
			want: MapDef{Type: bpftypes.BPF_MAP_TYPE_RINGBUF, MaxEntries: pageSize},
		},
		{
			name: "large ringbuf untouched",
			def:  MapDef{Type: bpftypes.BPF_MAP_TYPE_RINGBUF, MaxEntries: 2 * pageSize},
			kver: kver54,
			want: MapDef{Type: bpftypes.BPF_MAP_TYPE_RINGBUF, MaxEntries: 2 * pageSize},
		},
		{
			name: "devmap forced read-only from prog",
			def:  MapDef{Type: bpftypes.BPF_MAP_TYPE_DEVMAP, KeySize: 4, ValueSize: 4, MaxEntries: 8},
			kver: kver54,
			want: MapDef{Type: bpftypes.BPF_MAP_TYPE_DEVMAP, KeySize: 4, ValueSize: 4, MaxEntries: 8,
				Flags: bpftypes.BPFMapFlagsReadOnlyProg},
		},
		{
			name: "devmap hash kept on 5.4",
			def:  MapDef{Type: bpftypes.BPF_MAP_TYPE_DEVMAP_HASH, KeySize: 4, ValueSize: 4, MaxEntries: 8},
			kver: kver54,
			want: MapDef{Type: bpftypes.BPF_MAP_TYPE_DEVMAP_HASH, KeySize: 4, ValueSize: 4, MaxEntries: 8,
				Flags: bpftypes.BPFMapFlagsReadOnlyProg},
		},
		{
			name: "devmap hash degrades to hash before 5.4, no forced flag",
			def:  MapDef{Type: bpftypes.BPF_MAP_TYPE_DEVMAP_HASH, KeySize: 4, ValueSize: 4, MaxEntries: 8},
			kver: kver419,
			want: MapDef{Type: bpftypes.BPF_MAP_TYPE_HASH, KeySize: 4, ValueSize: 4, MaxEntries: 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adjustMapDef(tt.def, tt.kver, pageSize)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("adjusted def mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMapMatchesExpectations(t *testing.T) {
	def := MapDef{
		Type:       bpftypes.BPF_MAP_TYPE_HASH,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: 64,
		Flags:      bpftypes.BPFMapFlagsNoPreAlloc,
	}

	match := bpftypes.BPFMapInfo{
		Type:       bpftypes.BPF_MAP_TYPE_HASH,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: 64,
		MapFlags:   uint32(bpftypes.BPFMapFlagsNoPreAlloc),
	}

	if !mapMatchesExpectations(match, "m", def) {
		t.Fatal("identical attributes must match")
	}

	mutations := []struct {
		name   string
		mutate func(*bpftypes.BPFMapInfo)
	}{
		{"type", func(i *bpftypes.BPFMapInfo) { i.Type = bpftypes.BPF_MAP_TYPE_ARRAY }},
		{"key size", func(i *bpftypes.BPFMapInfo) { i.KeySize = 8 }},
		{"value size", func(i *bpftypes.BPFMapInfo) { i.ValueSize = 4 }},
		{"max entries", func(i *bpftypes.BPFMapInfo) { i.MaxEntries = 128 }},
		{"flags", func(i *bpftypes.BPFMapInfo) { i.MapFlags = 0 }},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			info := match
			tt.mutate(&info)
			if mapMatchesExpectations(info, "m", def) {
				t.Fatalf("%s mismatch must not match", tt.name)
			}
		})
	}
}

func TestObjNameBytes(t *testing.T) {
	short := objNameBytes("my_map")
	if got := string(short[:6]); got != "my_map" {
		t.Fatalf("name = %q, want my_map", got)
	}
	if short[6] != 0 {
		t.Fatal("name must be null terminated")
	}

	long := objNameBytes("a_very_long_map_name_indeed")
	if long[bpftypes.BPF_OBJ_NAME_LEN-1] != 0 {
		t.Fatal("truncated name must keep the trailing null byte")
	}
	if got := string(long[:bpftypes.BPF_OBJ_NAME_LEN-1]); got != "a_very_long_map" {
		t.Fatalf("truncated name = %q", got)
	}
}
