// Package adapter implements the JSON Adapter front end (spec.md §4.G): a
// line-delimited JSON request/response loop over stdin/stdout that
// translates commands into Facade operations.
package adapter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/xyproto/sbpfdbg/internal/debugger"
)

// Request is one decoded line of adapter input.
type Request struct {
	Command   string          `json:"command"`
	Args      json.RawMessage `json:"args"`
	RequestID json.RawMessage `json:"requestId"`
}

// Response is the envelope written back for every request.
type Response struct {
	Success   bool            `json:"success"`
	Data      any             `json:"data"`
	Error     *string         `json:"error"`
	RequestID json.RawMessage `json:"requestId"`
}

// Run reads newline-delimited JSON requests from in and writes responses
// to out until in is exhausted or a "quit" command is processed.
func Run(engine *debugger.Engine, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			errMsg := "Invalid command: " + err.Error()
			if encErr := enc.Encode(Response{Success: false, Data: nil, Error: &errMsg}); encErr != nil {
				return encErr
			}
			continue
		}

		resp := dispatch(engine, req)
		if err := enc.Encode(resp); err != nil {
			return err
		}
		if req.Command == "quit" {
			return nil
		}
	}
	return scanner.Err()
}

func dispatch(e *debugger.Engine, req Request) Response {
	data := handle(e, req)
	resp := Response{Data: data, RequestID: req.RequestID, Success: true}

	if msg, isErr := errorMessage(data); isErr {
		resp.Success = false
		resp.Error = &msg
	}
	return resp
}

// errorMessage inspects a command's data payload for the adapter's inner
// error shape — a top-level "error" key, or type:"error" with "message" —
// and reports the message to surface in the outer envelope's error field,
// matching adapter.rs's response inspection.
func errorMessage(data any) (string, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return "", false
	}
	if errVal, ok := m["error"]; ok {
		if s, ok := errVal.(string); ok && s != "" {
			return s, true
		}
	}
	if m["type"] == "error" {
		if s, ok := m["message"].(string); ok {
			return s, true
		}
		return "", true
	}
	return "", false
}

// handle runs one command against the engine and returns its data payload.
// An inner payload carrying an "error" key, or type:"error", marks the
// envelope unsuccessful even though parsing and dispatch both worked; see
// errorMessage.
func handle(e *debugger.Engine, req Request) any {
	var args []json.RawMessage
	if len(req.Args) > 0 {
		_ = json.Unmarshal(req.Args, &args)
	}

	switch req.Command {
	case "step":
		return eventData(e, debugger.ModeStep)
	case "continue":
		return eventData(e, debugger.ModeContinue)
	case "quit":
		return map[string]any{"type": "quit"}
	case "setBreakpoint":
		return setBreakpoint(e, args)
	case "removeBreakpoint":
		return removeBreakpoint(e, args)
	case "clearBreakpoints":
		file := ""
		if len(args) > 0 {
			_ = json.Unmarshal(args[0], &file)
		}
		e.ClearBreakpoints(file)
		return map[string]any{"result": "ok"}
	case "getStackFrames":
		return stackFramesData(e)
	case "getRegisters":
		return registersData(e)
	case "getRodata":
		return rodataData(e)
	case "getMemory":
		return memoryData(args)
	case "setRegister":
		return setRegister(e, args)
	default:
		return map[string]any{"type": "error", "message": "Unknown command"}
	}
}

func argUint(args []json.RawMessage, i int) (uint64, bool) {
	if i >= len(args) {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(args[i], &v); err != nil {
		return 0, false
	}
	return uint64(v), true
}

func argString(args []json.RawMessage, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	var v string
	if err := json.Unmarshal(args[i], &v); err != nil {
		return "", false
	}
	return v, true
}

func eventData(e *debugger.Engine, mode debugger.Mode) any {
	e.SetMode(mode)
	ev := e.Run()
	switch ev.Kind {
	case debugger.EventStep:
		return map[string]any{"type": "step", "pc": ev.PC, "line": lineOrNil(ev)}
	case debugger.EventBreakpoint:
		return map[string]any{"type": "breakpoint", "pc": ev.PC, "line": lineOrNil(ev)}
	case debugger.EventExit:
		cu := e.ComputeUnits()
		return map[string]any{"type": "exit", "code": ev.Code, "compute_units": cu}
	default:
		return map[string]any{"type": "error", "message": ev.Message}
	}
}

func lineOrNil(ev debugger.Event) any {
	if !ev.HasLine {
		return nil
	}
	return ev.Line
}

func setBreakpoint(e *debugger.Engine, args []json.RawMessage) any {
	file, _ := argString(args, 0)
	line, ok := argUint(args, 1)
	if !ok {
		return map[string]any{"type": "setBreakpoint", "file": file, "line": 0, "verified": false, "error": "missing line"}
	}
	e.SetBreakpointAtLine(uint32(line))
	return map[string]any{"type": "setBreakpoint", "file": file, "line": line, "verified": true}
}

func removeBreakpoint(e *debugger.Engine, args []json.RawMessage) any {
	file, _ := argString(args, 0)
	line, ok := argUint(args, 1)
	if !ok {
		return map[string]any{"type": "removeBreakpoint", "file": file, "line": 0, "success": false, "error": "missing line"}
	}
	e.RemoveBreakpointAtLine(uint32(line))
	return map[string]any{"type": "removeBreakpoint", "file": file, "line": line, "success": true}
}

func stackFramesData(e *debugger.Engine) any {
	frames := e.StackFrames()
	out := make([]map[string]any, 0, len(frames))
	for _, f := range frames {
		out = append(out, map[string]any{
			"index":       f.Index,
			"name":        f.Name,
			"file":        f.File,
			"line":        f.Line,
			"instruction": f.Instruction,
		})
	}
	return map[string]any{"frames": out}
}

func registersData(e *debugger.Engine) any {
	regs := e.Registers()
	out := make([]map[string]any, 0, len(regs))
	for i, v := range regs {
		out = append(out, map[string]any{
			"name":  fmt.Sprintf("r%d", i),
			"value": fmt.Sprintf("0x%016x", v),
			"type":  "u64",
		})
	}
	return map[string]any{"registers": out}
}

func rodataData(e *debugger.Engine) any {
	entries := e.Rodata()
	out := make([]map[string]any, 0, len(entries))
	for _, r := range entries {
		out = append(out, map[string]any{
			"name":    r.Name,
			"address": fmt.Sprintf("0x%016x", r.Address),
			"value":   r.Content,
		})
	}
	return map[string]any{"rodata": out}
}

func memoryData(args []json.RawMessage) any {
	addr, _ := argUint(args, 0)
	size, _ := argUint(args, 1)
	return map[string]any{"address": addr, "size": size, "data": []byte{}}
}

func setRegister(e *debugger.Engine, args []json.RawMessage) any {
	idx, ok1 := argUint(args, 0)
	val, ok2 := argUint(args, 1)
	if !ok1 || !ok2 {
		return map[string]any{"type": "setRegister", "success": false, "error": "missing index or value"}
	}
	if err := e.SetRegister(int(idx), val); err != nil {
		return map[string]any{"type": "setRegister", "index": idx, "value": val, "success": false, "error": err.Error()}
	}
	return map[string]any{"type": "setRegister", "index": idx, "value": val, "success": true}
}
