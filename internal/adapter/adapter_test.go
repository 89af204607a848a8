package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/xyproto/sbpfdbg/internal/debugger"
	"github.com/xyproto/sbpfdbg/internal/dwarfline"
	"github.com/xyproto/sbpfdbg/internal/sbpfvm"
)

type stubInterp struct {
	pcSlot uint64
	len    uint64
}

func (s *stubInterp) Step() (bool, error) {
	if s.pcSlot >= s.len {
		return false, nil
	}
	s.pcSlot++
	return true, nil
}
func (s *stubInterp) PC() uint64            { return s.pcSlot * sbpfvm.InstructionSize }
func (s *stubInterp) Registers() [12]uint64 { return [12]uint64{} }
func (s *stubInterp) SetRegister(idx int, val uint64) error {
	if idx < 0 || idx > 11 {
		return fmt.Errorf("register index %d out of range", idx)
	}
	return nil
}
func (s *stubInterp) CallFrames() []sbpfvm.CallFrame        { return nil }
func (s *stubInterp) CallDepth() int                        { return 0 }
func (s *stubInterp) ProgramResult() sbpfvm.ProgramResult {
	if s.pcSlot >= s.len {
		return sbpfvm.ProgramResult{Done: true}
	}
	return sbpfvm.ProgramResult{}
}
func (s *stubInterp) DueInstructionCount() uint64 { return 0 }
func (s *stubInterp) ResetDueInstructionCount()   {}

// S6: setBreakpoint with a line that resolves to a PC returns a verified
// envelope echoing the request id.
func TestSetBreakpointEnvelope(t *testing.T) {
	interp := &stubInterp{len: 10}
	e := debugger.New(interp, 1000)

	lm := buildLineMapForPC7(sbpfvm.InstructionSize)
	e.SetLineMap(lm)

	req := `{"command":"setBreakpoint","args":["f.s",7],"requestId":42}` + "\n"
	var out bytes.Buffer
	if err := Run(e, strings.NewReader(req), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("success = false, want true: %+v", resp)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is not an object: %#v", resp.Data)
	}
	if data["type"] != "setBreakpoint" || data["file"] != "f.s" || data["verified"] != true {
		t.Fatalf("unexpected data payload: %#v", data)
	}
	var gotID int
	if err := json.Unmarshal(resp.RequestID, &gotID); err != nil || gotID != 42 {
		t.Fatalf("requestId = %v, want 42", resp.RequestID)
	}
}

func TestUnknownCommand(t *testing.T) {
	interp := &stubInterp{len: 10}
	e := debugger.New(interp, 1000)

	req := `{"command":"bogus","args":null,"requestId":1}` + "\n"
	var out bytes.Buffer
	if err := Run(e, strings.NewReader(req), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Fatal("success = true, want false for unknown command")
	}
	if resp.Error == nil || *resp.Error != "Unknown command" {
		t.Fatalf("error = %v, want \"Unknown command\"", resp.Error)
	}
}

// setRegister on an out-of-range index returns an inner "error" payload;
// the outer envelope must surface it rather than reporting success.
func TestSetRegisterOutOfRangeEnvelope(t *testing.T) {
	interp := &stubInterp{len: 10}
	e := debugger.New(interp, 1000)

	req := `{"command":"setRegister","args":[12,1],"requestId":3}` + "\n"
	var out bytes.Buffer
	if err := Run(e, strings.NewReader(req), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Fatal("success = true, want false for an out-of-range register")
	}
	if resp.Error == nil || *resp.Error == "" {
		t.Fatal("error = nil, want the register-out-of-range message")
	}
}

// setBreakpoint with a missing line argument returns an inner "error"
// payload; the outer envelope must surface it rather than reporting success.
func TestSetBreakpointMissingLineEnvelope(t *testing.T) {
	interp := &stubInterp{len: 10}
	e := debugger.New(interp, 1000)

	req := `{"command":"setBreakpoint","args":["f.s"],"requestId":4}` + "\n"
	var out bytes.Buffer
	if err := Run(e, strings.NewReader(req), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Fatal("success = true, want false for a missing line argument")
	}
	if resp.Error == nil || *resp.Error != "missing line" {
		t.Fatalf("error = %v, want \"missing line\"", resp.Error)
	}
}

func TestInvalidJSON(t *testing.T) {
	interp := &stubInterp{len: 10}
	e := debugger.New(interp, 1000)

	req := `not json` + "\n"
	var out bytes.Buffer
	if err := Run(e, strings.NewReader(req), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.Error == nil || !strings.HasPrefix(*resp.Error, "Invalid command:") {
		t.Fatalf("unexpected response for invalid JSON: %+v", resp)
	}
}

// buildLineMapForPC7 constructs a LineMap whose line 7 resolves to pc.
func buildLineMapForPC7(pc uint64) *dwarfline.LineMap {
	return dwarfline.FromLines(map[uint32][]uint64{7: {pc}})
}
