package delve

// Remote procedures of the headless backend (API version 2). Arguments and
// replies are the rpc2 In/Out records of the same name.
const (
	CreateBreakpoint = "CreateBreakpoint"
	ClearBreakpoint  = "ClearBreakpoint"
	ListGoroutines   = "ListGoroutines"
	Stacktrace       = "Stacktrace"
	ListLocalVars    = "ListLocalVars"
	ListFunctionArgs = "ListFunctionArgs"
	Command          = "Command"
	State            = "State"
	Detach           = "Detach"
)
