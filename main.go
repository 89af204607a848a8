package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xyproto/sbpfdbg/internal/adapter"
	"github.com/xyproto/sbpfdbg/internal/build"
	"github.com/xyproto/sbpfdbg/internal/dbglog"
	"github.com/xyproto/sbpfdbg/internal/debugger"
	"github.com/xyproto/sbpfdbg/internal/dwarfline"
	"github.com/xyproto/sbpfdbg/internal/program"
	"github.com/xyproto/sbpfdbg/internal/repl"
	"github.com/xyproto/sbpfdbg/internal/rodata"
)

const versionString = "sbpfdbg 1.0.0"

func main() {
	var (
		fileFlag      = flag.String("file", "", "input file: .s for the build+debug variant, .so for the direct variant")
		linkerFlag    = flag.String("linker", "", "custom linker script (build+debug variant only)")
		debugFileFlag = flag.String("debug-file", "", "ELF carrying debug info, if different from --file (direct variant only)")
		inputFlag     = flag.String("input", "", "comma-separated decimal u8 input bytes")
		heapFlag      = flag.String("heap", "0", "heap region size in bytes")
		maxIxsFlag    = flag.String("max-ixs", "0", "compute-unit budget, i.e. max instructions (direct variant only)")
		adapterFlag   = flag.Bool("adapter", false, "use the JSON adapter instead of the REPL")
		verboseFlag   = flag.Bool("v", false, "verbose mode (show build and load diagnostics)")
		versionFlag   = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Println(versionString)
		return
	}
	dbglog.Verbose = *verboseFlag

	if *fileFlag == "" {
		dbglog.Errorf("--file is required")
		os.Exit(1)
	}

	soPath, debugPath, cleanup, err := resolveInput(*fileFlag, *linkerFlag, *debugFileFlag, *verboseFlag)
	if err != nil {
		dbglog.Errorf("%s", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	inputBytes, err := parseInputCSV(*inputFlag)
	if err != nil {
		dbglog.Errorf("%s", err)
		os.Exit(1)
	}
	heapSize, err := strconv.ParseUint(strings.TrimSpace(*heapFlag), 10, 64)
	if err != nil {
		dbglog.Errorf("invalid --heap value %q: %s", *heapFlag, err)
		os.Exit(1)
	}
	maxIxs, err := strconv.ParseUint(strings.TrimSpace(*maxIxsFlag), 10, 64)
	if err != nil {
		dbglog.Errorf("invalid --max-ixs value %q: %s", *maxIxsFlag, err)
		os.Exit(1)
	}

	loaded, err := program.Load(soPath, program.Options{
		HeapSize: int(heapSize),
		Input:    inputBytes,
	})
	if err != nil {
		dbglog.Errorf("%s", err)
		os.Exit(1)
	}

	engine := debugger.New(loaded.VM, maxIxs)

	lineMap, err := dwarfline.New(debugPath)
	if err != nil {
		dbglog.Warnf("dwarf", "no line mapping available: %s", err)
	} else {
		engine.SetLineMap(lineMap)
	}

	entries, err := rodata.Extract(soPath, debugPath)
	if err != nil {
		dbglog.Warnf("rodata", "no rodata available: %s", err)
	} else {
		engine.SetRodata(entries)
	}

	if *adapterFlag {
		if err := adapter.Run(engine, os.Stdin, os.Stdout); err != nil {
			dbglog.Errorf("%s", err)
			os.Exit(1)
		}
		return
	}
	repl.Run(engine, os.Stdin, os.Stdout)
}

// resolveInput implements the two CLI variants: a .s source is built via
// the external clang+ld.lld toolchain into a fresh .so, while a .so is
// debugged directly (with an optional separate debug-info ELF).
func resolveInput(file, linker, debugFile string, verbose bool) (soPath, debugPath string, cleanup func(), err error) {
	if strings.HasSuffix(file, ".s") || strings.HasSuffix(file, ".asm") {
		result, err := build.Build(build.Config{AssemblyFile: file, LinkerFile: linker, Debug: true})
		if err != nil {
			return "", "", nil, err
		}
		cleanup = func() { os.RemoveAll(result.TempDir) }
		return result.SharedObjectFile, result.SharedObjectFile, cleanup, nil
	}

	debugPath = file
	if debugFile != "" {
		debugPath = debugFile
	}
	return file, debugPath, nil, nil
}

// parseInputCSV parses a comma-separated decimal u8 list; an empty
// string, "0", or whitespace-only input yields an empty slice.
func parseInputCSV(s string) ([]byte, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "0" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]byte, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid --input byte %q: %w", p, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
