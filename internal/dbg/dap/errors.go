package dap

import "gni.dev/dlvdap/internal/dbg"

type dapError int

const (
	processingErr dapError = iota
	parseErr
	launchErr
	setBreakpointsErr
	commandErr
	backendErr
)

func (e dapError) String() string {
	return []string{
		"Processing error",
		"Parse error",
		"Failed to launch",
		"Failed to set breakpoints",
		"Debugger command failed",
		"Debugger backend unavailable",
	}[e]
}

// errorFor picks the error id reported for err; an unreachable backend
// always has its own id.
func errorFor(err error, fallback dapError) dapError {
	if dbg.CodeOf(err) == dbg.BackendUnavailable {
		return backendErr
	}
	return fallback
}
