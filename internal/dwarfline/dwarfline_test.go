package dwarfline

import "testing"

// buildSynthetic populates a LineMap the way FromELF would, without
// needing a real DWARF-bearing ELF on disk, to exercise the bijection
// property and the lookup methods in isolation.
func buildSynthetic() *LineMap {
	lm := empty()
	rows := []struct {
		pc   uint64
		line uint32
		file string
	}{
		{0x10, 5, "main.s"},
		{0x18, 5, "main.s"},
		{0x20, 6, "main.s"},
		{0x28, 8, "main.s"},
	}
	for _, r := range rows {
		lm.pcToLine[r.pc] = r.line
		lm.lineToPCs[r.line] = append(lm.lineToPCs[r.line], r.pc)
		lm.pcToLoc[r.pc] = SourceLocation{File: r.file, Line: r.line}
		lm.fileLine[fileLineKey{r.file, r.line}] = r.pc
		lm.pcToDwarf[r.pc] = r.pc
		lm.dwarfToPc[r.pc] = r.pc
	}
	lm.files = []string{"main.s"}
	return lm
}

// Property 5: LineMap bijection for present PCs.
func TestLineMapBijection(t *testing.T) {
	lm := buildSynthetic()

	for pc := range lm.pcToLine {
		line, ok := lm.LineForPC(pc)
		if !ok {
			t.Fatalf("LineForPC(%#x) missing", pc)
		}
		found := false
		for _, p := range lm.PCsForLine(line) {
			if p == pc {
				found = true
			}
		}
		if !found {
			t.Fatalf("pc %#x not present in PCsForLine(%d)", pc, line)
		}
	}
}

func TestLineMapMultiplePCsPerLine(t *testing.T) {
	lm := buildSynthetic()
	pcs := lm.PCsForLine(5)
	if len(pcs) != 2 {
		t.Fatalf("PCsForLine(5) = %v, want 2 entries", pcs)
	}
}

func TestLineMapUnknownPC(t *testing.T) {
	lm := buildSynthetic()
	if _, ok := lm.LineForPC(0xdead); ok {
		t.Fatal("expected no line for unmapped pc")
	}
}

func TestLineMapEmpty(t *testing.T) {
	lm := empty()
	if !lm.Empty() {
		t.Fatal("fresh LineMap should be Empty")
	}
	lm2 := buildSynthetic()
	if lm2.Empty() {
		t.Fatal("populated LineMap should not be Empty")
	}
}

func TestPCForFileLine(t *testing.T) {
	lm := buildSynthetic()
	pc, ok := lm.PCForFileLine("main.s", 6)
	if !ok || pc != 0x20 {
		t.Fatalf("PCForFileLine(main.s, 6) = (%#x, %v), want (0x20, true)", pc, ok)
	}
}
