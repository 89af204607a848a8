// Package dwarfline builds the bidirectional PC↔source-location map the
// Facade and REPL use for breakpoint resolution and stack-frame labeling,
// by walking the DWARF line-number program of every compilation unit in
// an ELF.
package dwarfline

import (
	"debug/dwarf"
	"debug/elf"

	"github.com/xyproto/sbpfdbg/internal/dbgerr"
)

// SourceLocation is a fully resolved file/line/column triple. Line 0 means
// unknown; column 0 means left-edge.
type SourceLocation struct {
	File   string
	Line   uint32
	Column uint32
}

// LineMap holds the four maps described by the data model, built once and
// never mutated after construction.
type LineMap struct {
	pcToLine  map[uint64]uint32
	lineToPCs map[uint32][]uint64
	pcToLoc   map[uint64]SourceLocation
	fileLine  map[fileLineKey]uint64
	files     []string

	// pcToDwarf/dwarfToPc are the identity maps spec.md §4.C calls for:
	// the DWARF row address is used directly as the interpreter PC. Kept
	// as distinct maps (rather than relying on the identity) so a future
	// translation layer has somewhere to live without touching callers.
	pcToDwarf map[uint64]uint64
	dwarfToPc map[uint64]uint64
}

type fileLineKey struct {
	file string
	line uint32
}

// New parses DWARF from the ELF at path and returns its LineMap. A missing
// or malformed .debug_line section is not an error: it returns an empty,
// non-nil LineMap, matching the Facade's policy of disabling the feature
// rather than failing the whole session.
func New(path string) (*LineMap, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, dbgerr.ElfParse("open "+path, err)
	}
	defer f.Close()
	return FromELF(f)
}

// FromELF builds a LineMap from an already-open ELF file.
func FromELF(f *elf.File) (*LineMap, error) {
	lm := empty()

	d, err := f.DWARF()
	if err != nil {
		return lm, nil
	}

	reader := d.Reader()
	var seenFileSet = make(map[string]bool)
	for {
		cu, err := reader.Next()
		if err != nil {
			return lm, nil
		}
		if cu == nil {
			break
		}
		if cu.Tag != dwarf.TagCompileUnit {
			reader.SkipChildren()
			continue
		}

		lr, err := d.LineReader(cu)
		if err != nil || lr == nil {
			reader.SkipChildren()
			continue
		}

		var entry dwarf.LineEntry
		for {
			if err := lr.Next(&entry); err != nil {
				break
			}
			if entry.EndSequence {
				continue
			}
			file := ""
			if entry.File != nil {
				file = entry.File.Name
			}
			if file != "" && !seenFileSet[file] {
				seenFileSet[file] = true
				lm.files = append(lm.files, file)
			}

			pc := entry.Address
			line := uint32(entry.Line)
			col := uint32(entry.Column)

			lm.pcToLine[pc] = line
			lm.lineToPCs[line] = append(lm.lineToPCs[line], pc)
			lm.pcToLoc[pc] = SourceLocation{File: file, Line: line, Column: col}
			lm.fileLine[fileLineKey{file, line}] = pc
			lm.pcToDwarf[pc] = pc
			lm.dwarfToPc[pc] = pc
		}
		reader.SkipChildren()
	}

	return lm, nil
}

// FromLines builds a LineMap directly from a line->PCs table, bypassing
// DWARF parsing. It exists for tests and tools that need a LineMap without
// a real ELF on disk; pcToLine/pcToLoc are back-filled with line-only
// SourceLocations (no file/column), and (file,line) lookups are unavailable.
func FromLines(lineToPCs map[uint32][]uint64) *LineMap {
	lm := empty()
	for line, pcs := range lineToPCs {
		cp := append([]uint64(nil), pcs...)
		lm.lineToPCs[line] = cp
		for _, pc := range cp {
			lm.pcToLine[pc] = line
			lm.pcToLoc[pc] = SourceLocation{Line: line}
			lm.pcToDwarf[pc] = pc
			lm.dwarfToPc[pc] = pc
		}
	}
	return lm
}

func empty() *LineMap {
	return &LineMap{
		pcToLine:  make(map[uint64]uint32),
		lineToPCs: make(map[uint32][]uint64),
		pcToLoc:   make(map[uint64]SourceLocation),
		fileLine:  make(map[fileLineKey]uint64),
		pcToDwarf: make(map[uint64]uint64),
		dwarfToPc: make(map[uint64]uint64),
	}
}

// LineForPC returns the recorded line for pc and whether one exists.
func (lm *LineMap) LineForPC(pc uint64) (uint32, bool) {
	l, ok := lm.pcToLine[pc]
	return l, ok
}

// PCsForLine returns the PCs recorded against line, possibly empty.
func (lm *LineMap) PCsForLine(line uint32) []uint64 {
	return lm.lineToPCs[line]
}

// SourceLocationForPC returns the full location recorded for pc.
func (lm *LineMap) SourceLocationForPC(pc uint64) (SourceLocation, bool) {
	loc, ok := lm.pcToLoc[pc]
	return loc, ok
}

// PCForFileLine returns the PC recorded for (file, line), last-write-wins
// across compilation units.
func (lm *LineMap) PCForFileLine(file string, line uint32) (uint64, bool) {
	pc, ok := lm.fileLine[fileLineKey{file, line}]
	return pc, ok
}

// Files returns the discovered file list, in discovery order.
func (lm *LineMap) Files() []string { return append([]string(nil), lm.files...) }

// Empty reports whether no line-number rows were discovered at all (used
// by the Facade to decide whether to surface line features).
func (lm *LineMap) Empty() bool { return len(lm.pcToLine) == 0 }
