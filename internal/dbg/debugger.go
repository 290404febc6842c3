package dbg

// State is the execution status of a debug session.
type State int

const (
	Uninitialized State = iota
	Initialized
	Running
	Stopped
	Exited
	Disconnected
)

func (s State) String() string {
	return []string{"uninitialized", "initialized", "running", "stopped", "exited", "disconnected"}[s]
}

// Stop reasons reported with a stopped event.
const (
	ReasonBreakpoint = "breakpoint"
	ReasonStep       = "step"
	ReasonEntry      = "entry"
)

type Location struct {
	File     string
	Line     int
	PC       uint64
	Function string
}

type Breakpoint struct {
	ID       int
	File     string
	Line     int
	Verified bool
	Message  string
}

// Thread is an execution unit of the debuggee (a goroutine for Go targets).
type Thread struct {
	ID   int64
	Name string
}

type Frame struct {
	Index    int
	Location Location
}

type Scope struct {
	Name      string
	Reference int
}

// Variable is always a leaf: nested expansion is not offered.
type Variable struct {
	Name  string
	Value string
	Type  string
}

// EventSink receives the asynchronous events of a session.
type EventSink interface {
	// Stopped is sent after a control command left the program suspended.
	Stopped(reason string, thread int64)
	// Terminated is sent once the program has exited.
	Terminated(exitCode int)
	// Output forwards a line of backend output.
	Output(category, text string)
}
