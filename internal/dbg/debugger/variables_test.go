package debugger

import (
	"context"
	"testing"

	"github.com/go-delve/delve/service/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gni.dev/dlvdap/internal/dbg"
	"gni.dev/dlvdap/internal/dbg/delve"
	"gni.dev/dlvdap/internal/dbg/test"
)

func withVars(b *test.Backend) {
	b.States = []*api.DebuggerState{test.StoppedAt(7, "main.go", 10), test.StoppedAt(7, "main.go", 11)}
	b.Args[0] = []api.Variable{{Name: "x", Value: "1", Type: "int"}}
	b.Locals[0] = []api.Variable{{Name: "y", Value: `"a"`, Type: "string"}}
	b.Locals[1] = []api.Variable{{Name: "z", Value: "true", Type: "bool"}}
}

func scopeRef(t *testing.T, d *Debugger, frame int) int {
	scopes, err := d.Scopes(frame)
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	return scopes[0].Reference
}

func TestVariables(t *testing.T) {
	b := test.NewBackend()
	withVars(b)
	d, _ := newDebugger(b, Config{})
	ctx := context.Background()
	require.NoError(t, d.Launch(ctx, LaunchOptions{Program: "main.go"}))

	scopes, err := d.Scopes(0)
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, "Local", scopes[0].Name)
	assert.GreaterOrEqual(t, scopes[0].Reference, firstHandle)

	vars, err := d.Variables(ctx, scopes[0].Reference)
	require.NoError(t, err)
	assert.Equal(t, []dbg.Variable{
		{Name: "x", Value: "1", Type: "int"},
		{Name: "y", Value: `"a"`, Type: "string"},
	}, vars)
	for _, s := range b.Scopes {
		assert.Equal(t, api.EvalScope{GoroutineID: 7, Frame: 0}, s)
	}

	vars, err = d.Variables(ctx, scopeRef(t, d, 1))
	require.NoError(t, err)
	assert.Equal(t, []dbg.Variable{{Name: "z", Value: "true", Type: "bool"}}, vars)
}

func TestScopesFreshHandles(t *testing.T) {
	b := test.NewBackend()
	withVars(b)
	d, _ := newDebugger(b, Config{})
	ctx := context.Background()
	require.NoError(t, d.Launch(ctx, LaunchOptions{Program: "main.go"}))

	a := scopeRef(t, d, 0)
	c := scopeRef(t, d, 0)
	assert.NotEqual(t, a, c)

	va, err := d.Variables(ctx, a)
	require.NoError(t, err)
	vc, err := d.Variables(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, va, vc)
}

func TestVariablesUnknownHandle(t *testing.T) {
	b := test.NewBackend()
	withVars(b)
	d, _ := newDebugger(b, Config{})
	ctx := context.Background()
	require.NoError(t, d.Launch(ctx, LaunchOptions{Program: "main.go"}))

	for i, key := range []string{"register_0", "local", "local_x"} {
		ref := d.handles.create(key)
		vars, err := d.Variables(ctx, ref)
		assert.NoError(t, err, "test #%d", i)
		assert.Empty(t, vars, "test #%d", i)
	}

	vars, err := d.Variables(ctx, 1)
	assert.NoError(t, err)
	assert.Empty(t, vars)
	assert.Empty(t, b.Scopes)
}

var resumeTests = []struct {
	reset bool
	kept  bool
}{
	{false, true},
	{true, false},
}

func TestVariablesAfterResume(t *testing.T) {
	for i, tt := range resumeTests {
		b := test.NewBackend()
		withVars(b)
		d, _ := newDebugger(b, Config{ResetHandlesOnResume: tt.reset})
		ctx := context.Background()
		require.NoError(t, d.Launch(ctx, LaunchOptions{Program: "main.go"}), "test #%d", i)

		old := scopeRef(t, d, 0)
		require.NoError(t, d.Next(ctx), "test #%d", i)

		vars, err := d.Variables(ctx, old)
		require.NoError(t, err, "test #%d", i)
		if tt.kept {
			assert.Len(t, vars, 2, "test #%d", i)
		} else {
			assert.Empty(t, vars, "test #%d", i)
		}
		assert.Greater(t, scopeRef(t, d, 0), old, "test #%d", i)
	}
}

func TestVariablesBackendError(t *testing.T) {
	b := test.NewBackend()
	withVars(b)
	d, _ := newDebugger(b, Config{})
	ctx := context.Background()
	require.NoError(t, d.Launch(ctx, LaunchOptions{Program: "main.go"}))
	b.Fail[delve.ListLocalVars] = "could not find scope"

	_, err := d.Variables(ctx, scopeRef(t, d, 0))
	assert.ErrorIs(t, err, dbg.ErrBackendCallFailed)
}

func TestScopesUnavailable(t *testing.T) {
	b := test.NewBackend()
	d, _ := newDebugger(b, Config{})
	_, err := d.Scopes(0)
	assert.ErrorIs(t, err, dbg.ErrBackendUnavailable)

	require.NoError(t, d.Launch(context.Background(), LaunchOptions{Program: "main.go", Deferred: true}))
	scopeRef(t, d, 0)

	require.NoError(t, d.Disconnect())
	_, err = d.Scopes(0)
	assert.ErrorIs(t, err, dbg.ErrBackendUnavailable)
}
