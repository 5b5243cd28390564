package bpfloader

import (
	"errors"
	"testing"

	"github.com/AtomXCLO/android-system-bpf/bpftypes"
	"github.com/AtomXCLO/android-system-bpf/ebpf"
)

func TestStripVersionSuffix(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"tracepoint_sched_switch", "tracepoint_sched_switch"},
		{"tracepoint_sched_switch$4_14", "tracepoint_sched_switch"},
		{"prog$a$b", "prog$a"},
		{"$odd", ""},
	}

	for _, tt := range tests {
		if got := stripVersionSuffix(tt.name); got != tt.want {
			t.Fatalf("stripVersionSuffix(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestInstallCodeSectionMissingDef(t *testing.T) {
	sec := codeSection{
		progType: bpftypes.BPF_PROG_TYPE_TRACEPOINT,
		name:     "tracepoint_sched_switch",
	}

	err := installCodeSection("obj", 0, &sec, "GPL", "test_", 0x50a00)
	if !errors.Is(err, ErrMissingProgramDef) {
		t.Fatalf("error = %v, want ErrMissingProgramDef", err)
	}
}

func TestInstallCodeSectionVersionGate(t *testing.T) {
	// a gated program is skipped without any kernel interaction and without
	// failing the load
	tests := []struct {
		name string
		def  ProgDef
	}{
		{"min above kernel", ProgDef{MinKver: 0xffff0000, MaxKver: 0xffffffff}},
		{"max at or below kernel", ProgDef{MinKver: 0, MaxKver: 0x40e00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := tt.def
			sec := codeSection{
				progType: bpftypes.BPF_PROG_TYPE_TRACEPOINT,
				name:     "tracepoint_sched_switch",
				insns:    make([]ebpf.RawInstruction, 2),
				progDef:  &def,
			}

			if err := installCodeSection("obj", 0, &sec, "GPL", "test_", 0x50a00); err != nil {
				t.Fatalf("gated section returned error: %v", err)
			}
		})
	}
}
