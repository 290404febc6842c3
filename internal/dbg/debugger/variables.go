package debugger

import (
	"context"

	"github.com/go-delve/delve/service/api"
	"github.com/go-delve/delve/service/rpc2"
	"golang.org/x/sync/errgroup"

	"gni.dev/dlvdap/internal/dbg"
	"gni.dev/dlvdap/internal/dbg/delve"
)

const scopeLocal = "local"

// loadConfig bounds how much of each variable the backend reads.
var loadConfig = api.LoadConfig{
	FollowPointers:     true,
	MaxVariableRecurse: 1,
	MaxStringLen:       64,
	MaxArrayValues:     64,
	MaxStructFields:    -1,
}

// Scopes allocates a fresh handle per scope of frame. Asking twice for the
// same frame yields different handles.
func (d *Debugger) Scopes(frame int) ([]dbg.Scope, error) {
	if err := d.Available(); err != nil {
		return nil, err
	}
	return []dbg.Scope{
		{Name: "Local", Reference: d.handles.create(scopeKey(scopeLocal, frame))},
	}, nil
}

// Variables resolves a handle returned by Scopes. Unknown handles and
// unknown scope kinds yield an empty list.
func (d *Debugger) Variables(ctx context.Context, ref int) ([]dbg.Variable, error) {
	key, ok := d.handles.get(ref)
	if !ok {
		d.log.Debug("unknown variables reference", "ref", ref)
		return nil, nil
	}
	kind, frame, err := parseScopeKey(key)
	if err != nil {
		d.log.Error("bad scope handle", "ref", ref, "err", err)
		return nil, nil
	}
	switch kind {
	case scopeLocal:
		return d.locals(ctx, frame)
	default:
		d.log.Error("unknown scope kind", "ref", ref, "kind", kind)
		return nil, nil
	}
}

// locals lists the arguments, then the local variables, of frame on the
// current thread.
func (d *Debugger) locals(ctx context.Context, frame int) ([]dbg.Variable, error) {
	thread, _ := d.Current()
	scope := api.EvalScope{GoroutineID: thread, Frame: frame}

	var args rpc2.ListFunctionArgsOut
	var locals rpc2.ListLocalVarsOut
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.call(gctx, delve.ListFunctionArgs, rpc2.ListFunctionArgsIn{Scope: scope, Cfg: loadConfig}, &args)
	})
	g.Go(func() error {
		return d.call(gctx, delve.ListLocalVars, rpc2.ListLocalVarsIn{Scope: scope, Cfg: loadConfig}, &locals)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vars := make([]dbg.Variable, 0, len(args.Args)+len(locals.Variables))
	for _, v := range append(args.Args, locals.Variables...) {
		vars = append(vars, dbg.Variable{Name: v.Name, Value: v.Value, Type: v.Type})
	}
	return vars, nil
}
