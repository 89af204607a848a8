// Package build drives the external compiler and linker: it resolves the
// active Solana SDK toolchain from the local install config, compiles an
// assembly source file to an object file, and links it into a deployable
// sBPF shared object (spec.md §4.H Build driver).
package build

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"

	"github.com/xyproto/env/v2"
	"github.com/xyproto/sbpfdbg/internal/dbgerr"
	"github.com/xyproto/sbpfdbg/internal/dbglog"
)

// DefaultLinker is the embedded linker script written to the build's
// temporary directory when the caller supplies none.
const DefaultLinker = `PHDRS
{
  text    PT_LOAD    ;
  data    PT_LOAD    ;
  dynamic PT_DYNAMIC ;
}

SECTIONS
{
  . = SIZEOF_HEADERS;
  .text    : { *(.text*)   } : text
  .rodata  : { *(.rodata*) } : text
  .dynamic : { *(.dynamic) } : dynamic
  .dynsym  : { *(.dynsym)  } : data
  /DISCARD/ : {
    *(.eh_frame*)
    *(.gnu.hash*)
    *(.hash*)
    *(.comment)
    *(.symtab)
    *(.strtab)
  }
}

ENTRY (entrypoint)
`

// Config describes one build invocation.
type Config struct {
	AssemblyFile string
	LinkerFile   string // empty: write DefaultLinker
	Debug        bool
}

// Result is the pair of artifacts a successful build produces, plus the
// temporary directory they live in (removed by the caller when the debug
// session ends).
type Result struct {
	ObjectFile       string
	SharedObjectFile string
	TempDir          string
}

// solanaConfig is the subset of ~/.config/solana/install/config.yml this
// driver reads.
type solanaConfig struct {
	ActiveReleaseDir string `yaml:"active_release_dir"`
}

// Build compiles cfg.AssemblyFile and links it into a shared object,
// resolving the toolchain from the active Solana SDK release.
func Build(cfg Config) (*Result, error) {
	fallback, err := os.UserHomeDir()
	if err != nil {
		return nil, dbgerr.IO("resolve home directory", err)
	}
	// Read HOME through env.Str, falling back to os.UserHomeDir when it is
	// unset or empty.
	home := env.Str("HOME", fallback)
	configPath := filepath.Join(home, ".config", "solana", "install", "config.yml")

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, dbgerr.IO("solana config not found at "+configPath, err)
	}

	var sc solanaConfig
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, dbgerr.IO("parse "+configPath, err)
	}
	if sc.ActiveReleaseDir == "" {
		return nil, dbgerr.IO("config.yml missing active_release_dir", nil)
	}

	platformTools := filepath.Join(sc.ActiveReleaseDir, "bin", "platform-tools-sdk", "sbf", "dependencies", "platform-tools")
	llvmDir := filepath.Join(platformTools, "llvm")
	clang := filepath.Join(llvmDir, "bin", "clang")
	ld := filepath.Join(llvmDir, "bin", "ld.lld")

	if _, err := os.Stat(llvmDir); err != nil {
		return nil, dbgerr.IO("solana platform-tools not found at "+llvmDir, err)
	}
	if err := checkExecutable(clang); err != nil {
		return nil, err
	}
	if err := checkExecutable(ld); err != nil {
		return nil, err
	}

	tempDir, err := os.MkdirTemp("", "sbpfdbg-build-")
	if err != nil {
		return nil, dbgerr.IO("create build temp dir", err)
	}

	stem := stripExt(filepath.Base(cfg.AssemblyFile))
	objectFile := filepath.Join(tempDir, stem+".o")

	if err := compileAssembly(clang, cfg.AssemblyFile, objectFile, cfg.Debug); err != nil {
		return nil, err
	}

	linkerFile := cfg.LinkerFile
	if linkerFile == "" {
		linkerFile = filepath.Join(tempDir, "linker.ld")
		if err := os.WriteFile(linkerFile, []byte(DefaultLinker), 0o644); err != nil {
			return nil, dbgerr.IO("write default linker script", err)
		}
	}

	sharedObjectFile := filepath.Join(tempDir, stem+".so")
	if err := buildSharedObject(ld, objectFile, linkerFile, sharedObjectFile); err != nil {
		return nil, err
	}

	return &Result{ObjectFile: objectFile, SharedObjectFile: sharedObjectFile, TempDir: tempDir}, nil
}

func stripExt(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)]
}

// checkExecutable pre-flights that path exists and carries an execute bit,
// so a permissions problem is reported before exec.Command fails opaquely.
func checkExecutable(path string) error {
	if err := unix.Access(path, unix.X_OK); err != nil {
		return dbgerr.IO(path+" is not executable", err)
	}
	return nil
}

func compileAssembly(clang, input, output string, debug bool) error {
	args := []string{"-target", "sbf", "-c", "-o", output, input}
	if debug {
		args = append(args, "-g")
	}
	dbglog.Debugf("build", "running %s %v", clang, args)
	cmd := exec.Command(clang, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return dbgerr.IO(fmt.Sprintf("compile %s", input), err)
	}
	return nil
}

func buildSharedObject(ld, input, linkerFile, output string) error {
	args := []string{
		"-shared", "-z", "notext",
		"--image-base", "0x100000000",
		"-T", linkerFile,
		"-o", output,
		input,
	}
	dbglog.Debugf("build", "running %s %v", ld, args)
	cmd := exec.Command(ld, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return dbgerr.IO(fmt.Sprintf("link %s", output), err)
	}
	return nil
}
