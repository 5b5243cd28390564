// Command bpfloader is the boot-time driver: it enumerates the compiled eBPF
// object files of the configured locations and hands each one to the loader.
// A failed critical object makes the whole invocation fail; a failed optional
// object is logged and skipped.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	bpfloader "github.com/AtomXCLO/android-system-bpf"
	"github.com/AtomXCLO/android-system-bpf/bpftypes"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	flagVerbose   bool
	flagDebug     bool
	flagPrefix    string
	flagProgTypes []string
)

// progTypeNames are the allow-list spellings accepted on the command line.
// "fuse" is the sentinel for the dynamic fuse program type.
var progTypeNames = map[string]bpftypes.BPFProgType{
	"kprobe":     bpftypes.BPF_PROG_TYPE_KPROBE,
	"perf_event": bpftypes.BPF_PROG_TYPE_PERF_EVENT,
	"skfilter":   bpftypes.BPF_PROG_TYPE_SOCKET_FILTER,
	"tracepoint": bpftypes.BPF_PROG_TYPE_TRACEPOINT,
	"fuse":       bpftypes.BPF_PROG_TYPE_UNSPEC,
}

func rootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "bpfloader [flags] <dir-or-object>...",
		Short: "Load and pin the eBPF objects of the given locations",
		Args:  cobra.MinimumNArgs(1),
		RunE:  run,

		SilenceUsage: true,
	}

	f := c.Flags()
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "Log at verbose level")
	f.BoolVar(&flagDebug, "debug", false, "Log at debug level")
	f.StringVar(&flagPrefix, "prefix", "", "Prefix prepended verbatim to every pin filename")
	f.StringSliceVar(&flagProgTypes, "allowed-prog-types", nil,
		"Restrict the program types permitted in the given locations "+
			"(kprobe, perf_event, skfilter, tracepoint, fuse). Empty allows any recognized type")

	return c
}

func run(cmd *cobra.Command, args []string) error {
	switch {
	case flagVerbose:
		log.SetLevel(log.TraceLevel)
	case flagDebug:
		log.SetLevel(log.DebugLevel)
	}

	allowed, err := parseAllowedProgTypes(flagProgTypes)
	if err != nil {
		return err
	}

	location := bpfloader.Location{
		Prefix:           flagPrefix,
		AllowedProgTypes: allowed,
	}

	objects, err := collectObjects(args)
	if err != nil {
		return err
	}

	failed := 0
	for _, objPath := range objects {
		critical, err := bpfloader.Load(objPath, location)
		if err == nil {
			continue
		}

		if critical {
			log.Errorf("Critical program %s failed to load: %v", objPath, err)
			failed++
			continue
		}

		log.Warnf("Optional program %s failed to load: %v", objPath, err)
	}

	if failed > 0 {
		return fmt.Errorf("%d critical object(s) failed to load", failed)
	}

	return nil
}

func parseAllowedProgTypes(names []string) ([]bpftypes.BPFProgType, error) {
	if len(names) == 0 {
		return nil, nil
	}

	types := make([]bpftypes.BPFProgType, 0, len(names))
	for _, name := range names {
		progType, ok := progTypeNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown program type '%s'", name)
		}
		types = append(types, progType)
	}

	return types, nil
}

// collectObjects expands each argument to the .o files it holds. Directories
// are walked one level deep in lexical order so load order is stable across
// boots.
func collectObjects(args []string) ([]string, error) {
	var objects []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			objects = append(objects, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}

		var names []string
		for _, entry := range entries {
			if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), ".o") {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			objects = append(objects, filepath.Join(arg, name))
		}
	}

	return objects, nil
}
