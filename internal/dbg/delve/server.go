package delve

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-delve/delve/service/rpc2"
)

const (
	ModeDebug = "debug"
	ModeExec  = "exec"

	DefaultPath           = "dlv"
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 2345
	DefaultAPIVersion     = 2
	DefaultConnectTimeout = 10 * time.Second

	maxDialDelay = time.Second
)

// Options describe how the backend is started and reached.
type Options struct {
	Path           string
	Host           string
	Port           int
	APIVersion     int
	ConnectTimeout time.Duration

	// Mode is ModeDebug (build and debug the package in Program's
	// directory) or ModeExec (debug the prebuilt binary Program).
	Mode       string
	Program    string
	Args       []string
	Dir        string
	BuildFlags string

	Logger *slog.Logger
	// Output receives each line the backend writes, tagged "stdout" or
	// "stderr". It is never interpreted.
	Output func(category, line string)
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = DefaultPath
	}
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.APIVersion == 0 {
		o.APIVersion = DefaultAPIVersion
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Mode == "" {
		o.Mode = ModeDebug
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// command returns the backend arguments and working directory.
func (o Options) command() ([]string, string, error) {
	args := []string{o.Mode}
	dir := o.Dir
	switch o.Mode {
	case ModeDebug:
		if dir == "" {
			dir = o.Program
			if fi, err := os.Stat(o.Program); err != nil || !fi.IsDir() {
				dir = filepath.Dir(o.Program)
			}
		}
	case ModeExec:
		prog, err := filepath.Abs(o.Program)
		if err != nil {
			return nil, "", err
		}
		args = append(args, prog)
		if dir == "" {
			dir = filepath.Dir(prog)
		}
	default:
		return nil, "", fmt.Errorf("unknown mode %q", o.Mode)
	}
	args = append(args,
		"--headless=true",
		"--listen="+o.Addr(),
		"--api-version="+strconv.Itoa(o.APIVersion),
		"--log",
	)
	if o.Mode == ModeDebug && o.BuildFlags != "" {
		args = append(args, "--build-flags="+o.BuildFlags)
	}
	if len(o.Args) > 0 {
		args = append(args, "--")
		args = append(args, o.Args...)
	}
	return args, dir, nil
}

// Start spawns the backend for opts.Program. The returned connection is
// never nil: when spawning fails the error is returned and the connection
// is permanently failed, so every call on it fails fast.
func Start(opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With("component", "backend")

	path, err := exec.LookPath(opts.Path)
	if err != nil {
		err = fmt.Errorf("%s unavailable: %w", opts.Path, err)
		return failedConn(log, err), err
	}
	args, dir, err := opts.command()
	if err != nil {
		return failedConn(log, err), err
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = sysProcAttr()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return failedConn(log, err), err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return failedConn(log, err), err
	}
	if err := cmd.Start(); err != nil {
		return failedConn(log, err), err
	}
	log.Info("backend started", "pid", cmd.Process.Pid, "args", args, "dir", dir)

	c := newConn(log)
	c.proc = cmd.Process
	c.exited = make(chan struct{})
	var streams sync.WaitGroup
	streams.Add(2)
	go forward(&streams, stdout, "stdout", log, opts.Output)
	go forward(&streams, stderr, "stderr", log, opts.Output)
	go func() {
		// Wait closes the pipes, so it must not run before both streams
		// are drained.
		streams.Wait()
		err := cmd.Wait()
		log.Info("backend exited", "err", err)
		close(c.exited)
	}()

	c.connect(opts)
	return c, nil
}

// Attach connects to a backend that is already listening on opts.Addr().
func Attach(opts Options) *Conn {
	opts = opts.withDefaults()
	c := newConn(opts.Logger.With("component", "backend"))
	c.connect(opts)
	return c
}

func (c *Conn) connect(opts Options) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	c.cancel = cancel
	go func() {
		defer cancel()
		conn, err := tryConnect(ctx, "tcp", opts.Addr(), c.exited)
		if err != nil {
			c.log.Error("backend unreachable", "addr", opts.Addr(), "err", err)
			c.resolve(nil, nil, err)
			return
		}
		c.log.Info("backend connected", "addr", opts.Addr())
		// The client negotiates the API version on creation; bound that
		// exchange by the connect deadline.
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetDeadline(deadline)
		}
		client := rpc2.NewClientFromConn(conn)
		conn.SetDeadline(time.Time{})
		c.resolve(conn, client, nil)
	}()
}

// tryConnect dials with a linearly growing delay until it succeeds, ctx is
// done or the process exits. A nil exited channel never fires.
func tryConnect(ctx context.Context, network, address string, exited <-chan struct{}) (net.Conn, error) {
	var d net.Dialer
	delay := 100 * time.Millisecond
	for {
		conn, err := d.DialContext(ctx, network, address)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-exited:
			return nil, errors.New("backend exited before accepting connections")
		case <-time.After(delay):
		}
		if delay < maxDialDelay {
			delay += 100 * time.Millisecond
		}
	}
}

func forward(wg *sync.WaitGroup, r io.Reader, category string, log *slog.Logger, out func(category, line string)) {
	defer wg.Done()
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()
		log.Info(line, "stream", category)
		if out != nil {
			out(category, line+"\n")
		}
	}
}
