package delve

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-delve/delve/service/api"
	"github.com/go-delve/delve/service/rpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gni.dev/dlvdap/internal/dbg"
)

func TestOptionsCommand(t *testing.T) {
	dir := t.TempDir()
	mainFile := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(mainFile, []byte("package main\n"), 0o644))

	var commandTests = []struct {
		opts    Options
		want    []string
		wantDir string
	}{
		{
			opts:    Options{Program: mainFile},
			want:    []string{"debug", "--headless=true", "--listen=127.0.0.1:2345", "--api-version=2", "--log"},
			wantDir: dir,
		},
		{
			opts:    Options{Program: dir, Port: 4000, BuildFlags: "-tags=dev", Args: []string{"-v", "x"}},
			want:    []string{"debug", "--headless=true", "--listen=127.0.0.1:4000", "--api-version=2", "--log", "--build-flags=-tags=dev", "--", "-v", "x"},
			wantDir: dir,
		},
		{
			opts:    Options{Program: filepath.Join(dir, "prog"), Mode: ModeExec, Dir: "/tmp"},
			want:    []string{"exec", filepath.Join(dir, "prog"), "--headless=true", "--listen=127.0.0.1:2345", "--api-version=2", "--log"},
			wantDir: "/tmp",
		},
	}

	for i, test := range commandTests {
		args, d, err := test.opts.withDefaults().command()
		assert.NoError(t, err, "test #%d", i)
		assert.Equal(t, test.want, args, "test #%d", i)
		assert.Equal(t, test.wantDir, d, "test #%d", i)
	}

	_, _, err := Options{Program: mainFile, Mode: "core"}.withDefaults().command()
	assert.Error(t, err)
}

func TestStartSpawnFailure(t *testing.T) {
	c, err := Start(Options{Path: "dlvdap-no-such-backend", Program: "main.go"})
	require.Error(t, err)
	require.NotNil(t, c)
	assert.ErrorIs(t, c.Err(), dbg.ErrBackendUnavailable)

	var st rpc2.CommandOut
	start := time.Now()
	err = c.Call(context.Background(), Command, api.DebuggerCommand{Name: api.Continue}, &st)
	assert.ErrorIs(t, err, dbg.ErrBackendUnavailable)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	assert.NoError(t, c.Stop())
	assert.NoError(t, c.Stop())
}

func TestStartBackendExitsEarly(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh unavailable")
	}
	lines := make(chan string, 16)
	opts := Options{
		Path:           "sh",
		Program:        t.TempDir(),
		Port:           freePort(t),
		ConnectTimeout: 30 * time.Second,
		Output: func(category, line string) {
			if category == "stderr" {
				lines <- line
			}
		},
	}
	// "sh debug ..." fails to open the script "debug" and exits.
	c, err := Start(opts)
	require.NoError(t, err)
	defer c.Stop()

	var st rpc2.CommandOut
	err = c.Call(context.Background(), Command, api.DebuggerCommand{Name: api.Continue}, &st)
	assert.ErrorIs(t, err, dbg.ErrBackendUnavailable)

	// The exit is only observed once both streams are drained, so the
	// backend's last words are already delivered.
	select {
	case line := <-lines:
		assert.NotEmpty(t, line)
	default:
		t.Fatal("backend stderr was not forwarded before the exit was reported")
	}
}

func TestTryConnectExited(t *testing.T) {
	exited := make(chan struct{})
	close(exited)
	_, err := tryConnect(context.Background(), "tcp", Options{Port: freePort(t)}.withDefaults().Addr(), exited)
	assert.EqualError(t, err, "backend exited before accepting connections")
}
