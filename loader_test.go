package bpfloader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingLicense(t *testing.T) {
	b := &elfBuilder{}
	b.progbits("critical", []byte("netd\x00"))

	objPath := filepath.Join(t.TempDir(), "nolicense.o")
	if err := os.WriteFile(objPath, b.build(t), 0644); err != nil {
		t.Fatal(err)
	}

	critical, err := Load(objPath, Location{})
	if !errors.Is(err, ErrMissingLicense) {
		t.Fatalf("error = %v, want ErrMissingLicense", err)
	}
	// criticality is read before the failure and stays meaningful
	if !critical {
		t.Fatal("critical section must be reported even on failure")
	}
}

func TestLoadOpenFailed(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.o"), Location{})
	if !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("error = %v, want ErrOpenFailed", err)
	}
}

func TestPathToObjName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/system/etc/bpf/foo.o", "foo"},
		{"/system/etc/bpf/foo@1.o", "foo"},
		{"bar.o", "bar"},
		{"bar@2.o", "bar"},
		{"baz", "baz"},
		{"/apex/dir/net_shared.o", "net_shared"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := pathToObjName(tt.path); got != tt.want {
				t.Fatalf("pathToObjName(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMapPinPath(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		objName string
		mapName string
		shared  bool
		want    string
	}{
		{"plain", "", "foo", "m", false, "/sys/fs/bpf/map_foo_m"},
		{"prefixed", "test_", "foo", "m", false, "/sys/fs/bpf/test_map_foo_m"},
		{"shared drops object name", "test_", "foo", "m", true, "/sys/fs/bpf/test_map__m"},
		{"subdir prefix", "tethering/", "off", "st", false, "/sys/fs/bpf/tethering/map_off_st"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapPinPath(tt.prefix, tt.objName, tt.mapName, tt.shared); got != tt.want {
				t.Fatalf("mapPinPath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProgPinPath(t *testing.T) {
	got := progPinPath("test_", "foo", "tracepoint_sched_switch")
	want := "/sys/fs/bpf/test_prog_foo_tracepoint_sched_switch"
	if got != want {
		t.Fatalf("progPinPath = %q, want %q", got, want)
	}
}
