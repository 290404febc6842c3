package dap

import (
	"fmt"
	"path/filepath"

	"github.com/google/go-dap"

	"gni.dev/dlvdap/internal/dbg"
)

// Sequence numbers are assigned by Session.send.

func newResponse(req dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		RequestSeq:      req.Seq,
		Success:         true,
		Command:         req.Command,
	}
}

func newEvent(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           name,
	}
}

func newErrResponse(requestSeq int, cmd string, e dapError, details string, show bool) *dap.ErrorResponse {
	return &dap.ErrorResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Type: "response"},
			RequestSeq:      requestSeq,
			Success:         false,
			Command:         cmd,
			Message:         e.String(),
		},
		Body: dap.ErrorResponseBody{
			Error: &dap.ErrorMessage{
				Id:       int(e),
				Format:   details,
				ShowUser: show,
			},
		},
	}
}

func newSource(path string) *dap.Source {
	return &dap.Source{Name: filepath.Base(path), Path: path}
}

func toBreakpoints(path string, bps []dbg.Breakpoint) []dap.Breakpoint {
	src := newSource(path)
	out := make([]dap.Breakpoint, 0, len(bps))
	for _, bp := range bps {
		out = append(out, dap.Breakpoint{
			Id:       bp.ID,
			Verified: bp.Verified,
			Message:  bp.Message,
			Source:   src,
			Line:     bp.Line,
		})
	}
	return out
}

func toThreads(threads []dbg.Thread) []dap.Thread {
	out := make([]dap.Thread, 0, len(threads))
	for _, t := range threads {
		out = append(out, dap.Thread{Id: int(t.ID), Name: t.Name})
	}
	return out
}

func toStackFrames(frames []dbg.Frame) []dap.StackFrame {
	out := make([]dap.StackFrame, 0, len(frames))
	for _, f := range frames {
		sf := dap.StackFrame{
			Id:                          f.Index,
			Name:                        f.Location.Function,
			Line:                        f.Location.Line,
			InstructionPointerReference: fmt.Sprintf("%#x", f.Location.PC),
		}
		if sf.Name == "" {
			sf.Name = "?"
		}
		if f.Location.File != "" {
			sf.Source = newSource(f.Location.File)
		}
		out = append(out, sf)
	}
	return out
}

func toScopes(scopes []dbg.Scope) []dap.Scope {
	out := make([]dap.Scope, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, dap.Scope{Name: s.Name, VariablesReference: s.Reference})
	}
	return out
}

// toVariables never sets a variables reference: values are not expandable.
func toVariables(vars []dbg.Variable) []dap.Variable {
	out := make([]dap.Variable, 0, len(vars))
	for _, v := range vars {
		out = append(out, dap.Variable{Name: v.Name, Value: v.Value, Type: v.Type})
	}
	return out
}
