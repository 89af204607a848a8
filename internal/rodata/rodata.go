// Package rodata extracts the .rodata section's symbols from a deployed
// sBPF ELF, computing each symbol's VM address and a printable rendering
// of its bytes.
package rodata

import (
	"debug/elf"
	"fmt"
	"sort"
	"strings"

	"github.com/xyproto/sbpfdbg/internal/dbgerr"
	"github.com/xyproto/sbpfdbg/internal/sbpfvm"
)

// Entry is one symbol carved out of .rodata.
type Entry struct {
	Name    string
	Address uint64
	Content string
}

// Extract reads debugPath (which may be the same file as soPath) for the
// .rodata section's presence, symbols, and bytes, and soPath independently
// for the deployed .rodata section's load address. A missing .rodata
// section in either file is not an error: it returns an empty list,
// matching the Facade's "feature simply disabled" policy for this
// extractor.
func Extract(soPath, debugPath string) ([]Entry, error) {
	debugFile, err := elf.Open(debugPath)
	if err != nil {
		return nil, dbgerr.ElfParse("open "+debugPath, err)
	}
	defer debugFile.Close()

	debugRodata := debugFile.Section(".rodata")
	if debugRodata == nil {
		return nil, nil
	}

	deploy := debugFile
	if soPath != debugPath {
		deploy, err = elf.Open(soPath)
		if err != nil {
			return nil, dbgerr.ElfParse("open "+soPath, err)
		}
		defer deploy.Close()
	}

	rodataSection := deploy.Section(".rodata")
	if rodataSection == nil {
		return nil, nil
	}

	data, err := debugRodata.Data()
	if err != nil {
		return nil, dbgerr.ElfParse(debugPath+": read .rodata", err)
	}

	syms, err := debugFile.Symbols()
	if err != nil {
		// No symbol table at all: not fatal, the extractor just has
		// nothing to enumerate.
		return nil, nil
	}

	rodataSectionIndex := sectionIndex(debugFile, debugRodata)

	type symInfo struct {
		name string
		addr uint64
	}
	var inSection []symInfo
	for _, s := range syms {
		if int(s.Section) != rodataSectionIndex {
			continue
		}
		inSection = append(inSection, symInfo{name: s.Name, addr: s.Value})
	}
	sort.Slice(inSection, func(i, j int) bool { return inSection[i].addr < inSection[j].addr })

	entries := make([]Entry, 0, len(inSection))
	for i, s := range inSection {
		start := s.addr - debugRodata.Addr
		end := uint64(len(data))
		if i+1 < len(inSection) {
			end = inSection[i+1].addr - debugRodata.Addr
		}
		if start > uint64(len(data)) {
			start = uint64(len(data))
		}
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		content := data[start:end]

		vmAddr := sbpfvm.MMRodataStart + rodataSection.Addr + s.addr

		entries = append(entries, Entry{
			Name:    s.name,
			Address: vmAddr,
			Content: render(content),
		})
	}
	return entries, nil
}

func sectionIndex(f *elf.File, target *elf.Section) int {
	for i, s := range f.Sections {
		if s == target {
			return i
		}
	}
	return -1
}

func render(b []byte) string {
	for _, c := range b {
		if !(c == ' ' || (c >= 0x20 && c < 0x7f)) {
			return renderHex(b)
		}
	}
	return string(b)
}

func renderHex(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(parts, " ")
}
