// Package program loads a built sBPF shared object (the output of
// internal/build or a file handed in directly via --file) and wires its
// .text section into a fresh internal/sbpfvm.VM, the minimal "component J"
// step SPEC_FULL.md adds between the ELF on disk and a running interpreter.
package program

import (
	"debug/elf"

	"github.com/xyproto/sbpfdbg/internal/dbgerr"
	"github.com/xyproto/sbpfdbg/internal/sbpfvm"
)

// Sizing defaults for the stack/heap/input regions when the caller doesn't
// override them (spec.md §6 --heap flag; stack size is fixed by the sBPF
// ABI).
const (
	DefaultStackSize = 4096 * 8
	DefaultHeapSize  = 32 * 1024
)

// Options configures how a loaded program's VM is sized and seeded.
type Options struct {
	HeapSize     int
	Input        []byte
	MaxCallDepth int
}

// Result is what Load hands back: a ready-to-step VM plus the entrypoint
// instruction slot it was seeded with.
type Result struct {
	VM           *sbpfvm.VM
	EntrypointPC uint64
}

// Load reads the ELF at path, extracts its .text section and entrypoint,
// and constructs a VM ready to execute from the entrypoint.
func Load(path string, opts Options) (*Result, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, dbgerr.ElfParse("open "+path, err)
	}
	defer f.Close()

	text := f.Section(".text")
	if text == nil {
		return nil, dbgerr.ElfParse(path+": missing .text section", nil)
	}
	textData, err := text.Data()
	if err != nil {
		return nil, dbgerr.ElfParse(path+": read .text", err)
	}

	entryOffset := f.Entry - text.Addr
	entryPC := entryOffset / sbpfvm.InstructionSize

	heapSize := opts.HeapSize
	if heapSize <= 0 {
		heapSize = DefaultHeapSize
	}

	vm := sbpfvm.New(sbpfvm.Config{
		Text:         textData,
		Stack:        make([]byte, DefaultStackSize),
		Heap:         make([]byte, heapSize),
		Input:        opts.Input,
		EntrypointPC: entryPC,
		MaxCallDepth: opts.MaxCallDepth,
	})

	return &Result{VM: vm, EntrypointPC: entryPC}, nil
}
