package debugger

import (
	"context"
	"errors"

	"github.com/go-delve/delve/service/api"
	"github.com/go-delve/delve/service/rpc2"
	"golang.org/x/sync/errgroup"

	"gni.dev/dlvdap/internal/dbg"
	"gni.dev/dlvdap/internal/dbg/delve"
)

// SetBreakpoints makes the backend's breakpoints for file exactly the given
// lines and reports one result per line, in order. All breakpoints known for
// the file are cleared before any is created. A line the backend refuses is
// reported unverified and is not tracked; only a lost backend fails the call.
func (d *Debugger) SetBreakpoints(ctx context.Context, file string, lines []int) ([]dbg.Breakpoint, error) {
	if err := d.Available(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	existing := d.breakpoints[file]
	d.mu.Unlock()

	var g errgroup.Group
	for _, bp := range existing {
		g.Go(func() error {
			var cleared rpc2.ClearBreakpointOut
			err := d.call(ctx, delve.ClearBreakpoint, rpc2.ClearBreakpointIn{Id: bp.ID}, &cleared)
			if err != nil {
				d.log.Warn("clear breakpoint", "file", file, "id", bp.ID, "err", err)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil && !softFailure(err) {
		return nil, err
	}

	results := make([]dbg.Breakpoint, 0, len(lines))
	active := make([]dbg.Breakpoint, 0, len(lines))
	for _, line := range lines {
		var created rpc2.CreateBreakpointOut
		in := rpc2.CreateBreakpointIn{Breakpoint: api.Breakpoint{File: file, Line: line}}
		err := d.call(ctx, delve.CreateBreakpoint, in, &created)
		if err != nil && !softFailure(err) {
			d.track(file, active)
			return nil, err
		}
		if err != nil {
			d.log.Info("breakpoint not verified", "file", file, "line", line, "err", err)
			results = append(results, dbg.Breakpoint{File: file, Line: line, Message: backendMessage(err)})
			continue
		}
		bp := dbg.Breakpoint{ID: created.Breakpoint.ID, File: file, Line: created.Breakpoint.Line, Verified: true}
		active = append(active, bp)
		results = append(results, bp)
	}
	d.track(file, active)
	return results, nil
}

// Breakpoints returns the breakpoints currently tracked for file.
func (d *Debugger) Breakpoints(file string) []dbg.Breakpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dbg.Breakpoint(nil), d.breakpoints[file]...)
}

func (d *Debugger) track(file string, bps []dbg.Breakpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(bps) == 0 {
		delete(d.breakpoints, file)
		return
	}
	d.breakpoints[file] = bps
}

// softFailure reports whether err is scoped to a single backend call.
func softFailure(err error) bool {
	return errors.Is(err, dbg.ErrBackendCallFailed)
}

func backendMessage(err error) string {
	var e *dbg.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
