// Package debugger reconciles a debug session with the backend: it drives
// execution, tracks the current stop location, keeps the backend's
// breakpoint set in line with the client's and resolves variable handles.
package debugger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-delve/delve/service/api"
	"github.com/go-delve/delve/service/rpc2"

	"gni.dev/dlvdap/internal/dbg"
	"gni.dev/dlvdap/internal/dbg/delve"
)

const (
	defaultStackDepth = 50
	detachTimeout     = time.Second
)

var (
	errNotLaunched   = errors.New("no backend launched")
	errDisconnected  = errors.New("session disconnected")
	errAlreadyActive = errors.New("session already has a backend")
)

// Backend is the RPC surface of the backend connection.
type Backend interface {
	Call(ctx context.Context, method string, args, reply interface{}) error
	// Err reports a permanent connection failure without blocking.
	Err() error
	Stop() error
}

type Config struct {
	// Backend holds the defaults for every launch; LaunchOptions override
	// the per-program fields.
	Backend delve.Options
	// StopOnEntry disables the initial continue after launch.
	StopOnEntry bool
	// ResetHandlesOnResume drops all variable handles whenever execution
	// resumes. Handle numbers are still never reused.
	ResetHandlesOnResume bool
	Logger               *slog.Logger

	Start  func(delve.Options) (Backend, error)
	Attach func(delve.Options) Backend
}

type LaunchOptions struct {
	Program    string
	Mode       string
	Args       []string
	Dir        string
	BuildFlags string
	// StopOnEntry overrides Config.StopOnEntry when set.
	StopOnEntry *bool
	// Deferred postpones the initial continue until ConfigurationDone.
	Deferred bool
}

type AttachOptions struct {
	Host        string
	Port        int
	StopOnEntry *bool
	Deferred    bool
}

// Debugger is one debug session. It is safe for concurrent use, but
// control commands and queries are expected to be issued one at a time.
type Debugger struct {
	cfg    Config
	log    *slog.Logger
	events dbg.EventSink

	mu          sync.Mutex
	backend     Backend
	state       dbg.State
	exitCode    int
	thread      int64
	loc         dbg.Location
	pending     bool
	stopOnEntry bool
	breakpoints map[string][]dbg.Breakpoint
	handles     *handles
}

func New(cfg Config, events dbg.EventSink) *Debugger {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Start == nil {
		cfg.Start = func(o delve.Options) (Backend, error) { return delve.Start(o) }
	}
	if cfg.Attach == nil {
		cfg.Attach = func(o delve.Options) Backend { return delve.Attach(o) }
	}
	return &Debugger{
		cfg:         cfg,
		log:         cfg.Logger.With("component", "debugger"),
		events:      events,
		breakpoints: map[string][]dbg.Breakpoint{},
		handles:     newHandles(),
	}
}

func (d *Debugger) Initialize() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == dbg.Uninitialized {
		d.state = dbg.Initialized
	}
}

func (d *Debugger) State() dbg.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Current returns the thread and location of the last stop.
func (d *Debugger) Current() (int64, dbg.Location) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.thread, d.loc
}

func (d *Debugger) ExitCode() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exitCode
}

// Launch spawns the backend for the program. Unless stop-on-entry applies
// or the launch is deferred, execution continues to the first breakpoint.
func (d *Debugger) Launch(ctx context.Context, opts LaunchOptions) error {
	if opts.Program == "" {
		return dbg.Invalid("launch", errors.New("program is required"))
	}
	o := d.cfg.Backend
	o.Program = opts.Program
	o.Args = opts.Args
	o.Dir = opts.Dir
	if opts.Mode != "" {
		o.Mode = opts.Mode
	}
	if opts.BuildFlags != "" {
		o.BuildFlags = opts.BuildFlags
	}
	o.Logger = d.cfg.Logger
	if d.events != nil {
		o.Output = d.events.Output
	}

	if err := d.claim(); err != nil {
		return err
	}
	b, err := d.cfg.Start(o)
	d.setBackend(b, err == nil)
	if err != nil {
		d.log.Error("launch failed", "program", opts.Program, "err", err)
		return dbg.Unavailable("launch", err)
	}
	d.log.Info("launched", "program", opts.Program, "mode", o.Mode)
	return d.begin(ctx, opts.StopOnEntry, opts.Deferred)
}

// Attach connects to a backend that is already listening.
func (d *Debugger) Attach(ctx context.Context, opts AttachOptions) error {
	o := d.cfg.Backend
	if opts.Host != "" {
		o.Host = opts.Host
	}
	if opts.Port != 0 {
		o.Port = opts.Port
	}
	o.Logger = d.cfg.Logger

	if err := d.claim(); err != nil {
		return err
	}
	d.setBackend(d.cfg.Attach(o), true)
	d.log.Info("attached", "addr", o.Addr())
	return d.begin(ctx, opts.StopOnEntry, opts.Deferred)
}

func (d *Debugger) claim() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.state == dbg.Disconnected:
		return dbg.Unavailable("launch", errDisconnected)
	case d.backend != nil:
		return dbg.Invalid("launch", errAlreadyActive)
	}
	return nil
}

// setBackend installs b even when it failed to start, so that later calls
// fail with its error instead of reporting a missing launch.
func (d *Debugger) setBackend(b Backend, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backend = b
	if ok {
		d.state = dbg.Running
	}
}

func (d *Debugger) begin(ctx context.Context, override *bool, deferred bool) error {
	stop := d.cfg.StopOnEntry
	if override != nil {
		stop = *override
	}
	d.mu.Lock()
	d.stopOnEntry = stop
	d.pending = deferred
	d.mu.Unlock()
	if deferred {
		return nil
	}
	return d.run(ctx)
}

// ConfigurationDone performs the initial continue of a deferred launch.
func (d *Debugger) ConfigurationDone(ctx context.Context) error {
	d.mu.Lock()
	pending := d.pending
	d.pending = false
	d.mu.Unlock()
	if !pending {
		return nil
	}
	return d.run(ctx)
}

func (d *Debugger) run(ctx context.Context) error {
	d.mu.Lock()
	stop := d.stopOnEntry
	d.mu.Unlock()
	if stop {
		return d.entry(ctx)
	}
	return d.Continue(ctx)
}

// entry reports the stop the backend holds the program in right after
// launch. Before the runtime has started there is no goroutine and the
// reported unit is 0, which the backend resolves to the current thread.
func (d *Debugger) entry(ctx context.Context) error {
	var out rpc2.StateOut
	if err := d.call(ctx, delve.State, rpc2.StateIn{NonBlocking: true}, &out); err != nil {
		d.log.Warn("entry state", "err", err)
		return err
	}
	var thread int64
	var loc dbg.Location
	if out.State != nil {
		thread, loc = current(out.State)
	}

	d.mu.Lock()
	if d.state == dbg.Disconnected {
		d.mu.Unlock()
		return nil
	}
	d.state = dbg.Stopped
	d.thread = thread
	d.loc = loc
	d.mu.Unlock()

	d.log.Debug("stopped on entry", "thread", thread, "file", loc.File, "line", loc.Line)
	if d.events != nil {
		d.events.Stopped(dbg.ReasonEntry, thread)
	}
	return nil
}

func (d *Debugger) Continue(ctx context.Context) error {
	return d.control(ctx, api.Continue, dbg.ReasonBreakpoint)
}

func (d *Debugger) Next(ctx context.Context) error {
	return d.control(ctx, api.Next, dbg.ReasonStep)
}

func (d *Debugger) StepIn(ctx context.Context) error {
	return d.control(ctx, api.Step, dbg.ReasonStep)
}

func (d *Debugger) StepOut(ctx context.Context) error {
	return dbg.Unsupported("stepOut")
}

func (d *Debugger) Pause(ctx context.Context) error {
	return dbg.Unsupported("pause")
}

// control resumes execution with the named backend command and records
// where it ended. On failure the session state is left as it was and no
// event is emitted.
func (d *Debugger) control(ctx context.Context, name, reason string) error {
	if err := d.Available(); err != nil {
		return err
	}
	d.mu.Lock()
	prev := d.state
	d.state = dbg.Running
	if d.cfg.ResetHandlesOnResume {
		d.handles.reset()
	}
	d.mu.Unlock()

	var out rpc2.CommandOut
	if err := d.call(ctx, delve.Command, api.DebuggerCommand{Name: name}, &out); err != nil {
		d.mu.Lock()
		if d.state == dbg.Running {
			d.state = prev
		}
		d.mu.Unlock()
		d.log.Warn("command failed", "command", name, "err", err)
		return err
	}

	st := &out.State
	d.mu.Lock()
	if d.state == dbg.Disconnected {
		d.mu.Unlock()
		return nil
	}
	if st.Exited {
		d.state = dbg.Exited
		d.exitCode = st.ExitStatus
		d.mu.Unlock()
		d.log.Info("program exited", "status", st.ExitStatus)
		if d.events != nil {
			d.events.Terminated(st.ExitStatus)
		}
		return nil
	}
	thread, loc := current(st)
	d.state = dbg.Stopped
	d.thread = thread
	d.loc = loc
	d.mu.Unlock()

	d.log.Debug("stopped", "reason", reason, "thread", thread, "file", loc.File, "line", loc.Line)
	if d.events != nil {
		d.events.Stopped(reason, thread)
	}
	return nil
}

// Disconnect tears down the backend regardless of state. Repeated calls
// are no-ops.
func (d *Debugger) Disconnect() error {
	d.mu.Lock()
	b := d.backend
	prev := d.state
	d.state = dbg.Disconnected
	d.mu.Unlock()
	if prev == dbg.Disconnected || b == nil {
		return nil
	}
	d.log.Info("disconnecting", "state", prev)
	// A running backend is busy with the control command; killing it is
	// the only way to interrupt.
	if prev != dbg.Running && b.Err() == nil {
		ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
		if err := b.Call(ctx, delve.Detach, rpc2.DetachIn{Kill: true}, &rpc2.DetachOut{}); err != nil {
			d.log.Debug("detach", "err", err)
		}
		cancel()
	}
	if err := b.Stop(); err != nil {
		d.log.Warn("stop backend", "err", err)
	}
	return nil
}

// Available reports whether calls can currently reach the backend. A
// pending connection counts as available.
func (d *Debugger) Available() error {
	d.mu.Lock()
	b := d.backend
	st := d.state
	d.mu.Unlock()
	switch {
	case st == dbg.Disconnected:
		return dbg.Unavailable("", errDisconnected)
	case b == nil:
		return dbg.Unavailable("", errNotLaunched)
	}
	return b.Err()
}

func (d *Debugger) Threads(ctx context.Context) ([]dbg.Thread, error) {
	var out rpc2.ListGoroutinesOut
	if err := d.call(ctx, delve.ListGoroutines, rpc2.ListGoroutinesIn{}, &out); err != nil {
		return nil, err
	}
	threads := make([]dbg.Thread, 0, len(out.Goroutines))
	for _, g := range out.Goroutines {
		loc := g.UserCurrentLoc
		name := funcName(loc.Function)
		if name == "" {
			name = fmt.Sprintf("%s@%d", loc.File, loc.Line)
		}
		threads = append(threads, dbg.Thread{ID: g.ID, Name: name})
	}
	return threads, nil
}

// StackTrace lists up to levels frames of thread; levels <= 0 uses the
// default depth. Frame indices are only meaningful until execution resumes.
func (d *Debugger) StackTrace(ctx context.Context, thread int64, levels int) ([]dbg.Frame, error) {
	depth := levels
	if depth <= 0 {
		depth = defaultStackDepth
	}
	var out rpc2.StacktraceOut
	if err := d.call(ctx, delve.Stacktrace, rpc2.StacktraceIn{Id: thread, Depth: depth}, &out); err != nil {
		return nil, err
	}
	locs := out.Locations
	if levels > 0 && len(locs) > levels {
		locs = locs[:levels]
	}
	frames := make([]dbg.Frame, 0, len(locs))
	for i, l := range locs {
		frames = append(frames, dbg.Frame{
			Index:    i,
			Location: dbg.Location{File: l.File, Line: l.Line, PC: l.PC, Function: funcName(l.Function)},
		})
	}
	return frames, nil
}

// Evaluate echoes the expression; evaluation is not offered. It still
// fails once the backend is gone.
func (d *Debugger) Evaluate(expr string) (string, error) {
	if err := d.Available(); err != nil {
		return "", err
	}
	return expr, nil
}

func (d *Debugger) call(ctx context.Context, method string, args, reply interface{}) error {
	d.mu.Lock()
	b := d.backend
	st := d.state
	d.mu.Unlock()
	switch {
	case st == dbg.Disconnected:
		return dbg.Unavailable(method, errDisconnected)
	case b == nil:
		return dbg.Unavailable(method, errNotLaunched)
	}
	return b.Call(ctx, method, args, reply)
}

func current(st *api.DebuggerState) (int64, dbg.Location) {
	var id int64
	var loc dbg.Location
	if g := st.SelectedGoroutine; g != nil {
		id = g.ID
		l := g.CurrentLoc
		loc = dbg.Location{File: l.File, Line: l.Line, PC: l.PC, Function: funcName(l.Function)}
	}
	if th := st.CurrentThread; th != nil {
		if id == 0 {
			id = th.GoroutineID
		}
		loc = dbg.Location{File: th.File, Line: th.Line, PC: th.PC, Function: funcName(th.Function)}
	}
	return id, loc
}

func funcName(fn *api.Function) string {
	if fn == nil {
		return ""
	}
	return fn.Name()
}
