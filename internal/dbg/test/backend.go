package test

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-delve/delve/service/api"
	"github.com/go-delve/delve/service/rpc2"

	"gni.dev/dlvdap/internal/dbg"
	"gni.dev/dlvdap/internal/dbg/delve"
)

// Backend is an in-memory stand-in for the headless backend. Fields may be
// set before use; the call log is safe to read once calls have returned.
type Backend struct {
	mu sync.Mutex

	// Reject lists lines whose breakpoints the backend refuses.
	Reject map[int]bool
	// States are returned by successive Command calls; when exhausted the
	// program is reported as exited with status 0.
	States []*api.DebuggerState
	// Entry is returned by State; nil reports goroutine 1 with no location.
	Entry      *api.DebuggerState
	Goroutines []*api.Goroutine
	Stacks     map[int64][]api.Location
	Args       map[int][]api.Variable
	Locals     map[int][]api.Variable
	// Fail makes every call of the named method fail with a backend error.
	Fail map[string]string

	Breakpoints map[int]*api.Breakpoint
	Calls       []string
	Commands    []string
	Scopes      []api.EvalScope

	nextID  int
	stopped int
}

func NewBackend() *Backend {
	return &Backend{
		Reject:      map[int]bool{},
		Stacks:      map[int64][]api.Location{},
		Args:        map[int][]api.Variable{},
		Locals:      map[int][]api.Variable{},
		Fail:        map[string]string{},
		Breakpoints: map[int]*api.Breakpoint{},
	}
}

func (b *Backend) Call(ctx context.Context, method string, args, reply interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped > 0 {
		return dbg.Unavailable(method, fmt.Errorf("connection is shut down"))
	}
	b.Calls = append(b.Calls, method)
	if msg, ok := b.Fail[method]; ok {
		return dbg.CallFailed(method, msg)
	}

	switch method {
	case delve.CreateBreakpoint:
		in := args.(rpc2.CreateBreakpointIn).Breakpoint
		if b.Reject[in.Line] {
			return dbg.CallFailed(method, fmt.Sprintf("could not find statement at %s:%d", in.File, in.Line))
		}
		b.nextID++
		bp := &api.Breakpoint{ID: b.nextID, File: in.File, Line: in.Line, Addr: uint64(0x400000 + in.Line)}
		b.Breakpoints[bp.ID] = bp
		reply.(*rpc2.CreateBreakpointOut).Breakpoint = *bp
	case delve.ClearBreakpoint:
		id := args.(rpc2.ClearBreakpointIn).Id
		bp, ok := b.Breakpoints[id]
		if !ok {
			return dbg.CallFailed(method, fmt.Sprintf("no breakpoint with id %d", id))
		}
		delete(b.Breakpoints, id)
		reply.(*rpc2.ClearBreakpointOut).Breakpoint = bp
	case delve.ListGoroutines:
		reply.(*rpc2.ListGoroutinesOut).Goroutines = b.Goroutines
	case delve.Stacktrace:
		in := args.(rpc2.StacktraceIn)
		locs := b.Stacks[in.Id]
		if in.Depth > 0 && len(locs) > in.Depth+1 {
			locs = locs[:in.Depth+1]
		}
		frames := make([]api.Stackframe, 0, len(locs))
		for _, l := range locs {
			frames = append(frames, api.Stackframe{Location: l})
		}
		reply.(*rpc2.StacktraceOut).Locations = frames
	case delve.ListFunctionArgs:
		scope := args.(rpc2.ListFunctionArgsIn).Scope
		b.Scopes = append(b.Scopes, scope)
		reply.(*rpc2.ListFunctionArgsOut).Args = b.Args[scope.Frame]
	case delve.ListLocalVars:
		scope := args.(rpc2.ListLocalVarsIn).Scope
		b.Scopes = append(b.Scopes, scope)
		reply.(*rpc2.ListLocalVarsOut).Variables = b.Locals[scope.Frame]
	case delve.Command:
		cmd := args.(api.DebuggerCommand)
		b.Commands = append(b.Commands, cmd.Name)
		st := &api.DebuggerState{Exited: true}
		if len(b.States) > 0 {
			st, b.States = b.States[0], b.States[1:]
		}
		reply.(*rpc2.CommandOut).State = *st
	case delve.State:
		st := b.Entry
		if st == nil {
			st = &api.DebuggerState{SelectedGoroutine: &api.Goroutine{ID: 1}}
		}
		reply.(*rpc2.StateOut).State = st
	case delve.Detach:
		if !args.(rpc2.DetachIn).Kill {
			return dbg.CallFailed(method, "detach without kill")
		}
	default:
		return dbg.CallFailed(method, "unknown method")
	}
	return nil
}

func (b *Backend) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped > 0 {
		return dbg.Unavailable("", fmt.Errorf("stopped"))
	}
	return nil
}

func (b *Backend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped++
	return nil
}

// StopCount reports how many times Stop was called.
func (b *Backend) StopCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// Active returns the lines of the breakpoints the backend holds for file.
func (b *Backend) Active(file string) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var lines []int
	for id := 1; id <= b.nextID; id++ {
		if bp, ok := b.Breakpoints[id]; ok && bp.File == file {
			lines = append(lines, bp.Line)
		}
	}
	return lines
}

// CallLog returns a copy of the methods called so far.
func (b *Backend) CallLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.Calls...)
}

// StoppedAt builds a state describing goroutine g stopped at file:line.
func StoppedAt(g int64, file string, line int) *api.DebuggerState {
	return &api.DebuggerState{
		CurrentThread: &api.Thread{
			ID:          1,
			PC:          uint64(0x400000 + line),
			File:        file,
			Line:        line,
			Function:    &api.Function{Name_: "main.main"},
			GoroutineID: g,
		},
		SelectedGoroutine: &api.Goroutine{ID: g},
	}
}
