package delve

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/rpc"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-delve/delve/service/rpc2"

	"gni.dev/dlvdap/internal/dbg"
)

var errStopped = errors.New("backend stopped")

// Conn is the session's single connection to the backend. It is returned
// before the backend is reachable and resolves exactly once, in the
// background; calls made in the meantime wait for it.
type Conn struct {
	log *slog.Logger

	ready  chan struct{}
	client *rpc2.RPCClient
	conn   net.Conn
	err    error

	proc    *os.Process
	exited  chan struct{}
	cancel  context.CancelFunc
	stopped atomic.Bool
	once    sync.Once
}

func newConn(log *slog.Logger) *Conn {
	return &Conn{log: log, ready: make(chan struct{}), cancel: func() {}}
}

// failedConn returns a connection that is already permanently failed.
func failedConn(log *slog.Logger, err error) *Conn {
	c := newConn(log)
	c.resolve(nil, nil, err)
	return c
}

func (c *Conn) resolve(conn net.Conn, client *rpc2.RPCClient, err error) {
	c.conn, c.client, c.err = conn, client, err
	close(c.ready)
}

func (c *Conn) wait(ctx context.Context, op string) (*rpc2.RPCClient, error) {
	if c.stopped.Load() {
		return nil, dbg.Unavailable(op, errStopped)
	}
	select {
	case <-c.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, dbg.Unavailable(op, c.err)
	}
	if c.stopped.Load() {
		return nil, dbg.Unavailable(op, errStopped)
	}
	return c.client, nil
}

// Err reports a permanent failure without blocking. It is nil while the
// connection is pending or up.
func (c *Conn) Err() error {
	if c.stopped.Load() {
		return dbg.Unavailable("", errStopped)
	}
	select {
	case <-c.ready:
		if c.err != nil {
			return dbg.Unavailable("", c.err)
		}
	default:
	}
	return nil
}

// Call invokes method with args and decodes the result into reply. Backend
// application errors are returned verbatim as BackendCallFailed; transport
// failures as BackendUnavailable. Nothing is retried.
func (c *Conn) Call(ctx context.Context, method string, args, reply interface{}) error {
	client, err := c.wait(ctx, method)
	if err != nil {
		return err
	}
	c.log.Debug("rpc call", "method", method)
	done := make(chan error, 1)
	go func() {
		done <- client.CallAPI(method, args, reply)
	}()
	select {
	case err := <-done:
		return callError(method, err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending is an outstanding call started with Go.
type Pending struct {
	Method string
	Reply  interface{}
	Error  error
	Done   chan *Pending
}

// Go starts a call and returns immediately; Done receives the call once it
// has completed.
func (c *Conn) Go(ctx context.Context, method string, args, reply interface{}) *Pending {
	p := &Pending{Method: method, Reply: reply, Done: make(chan *Pending, 1)}
	go func() {
		p.Error = c.Call(ctx, method, args, reply)
		p.Done <- p
	}()
	return p
}

// CallFunc starts a call and reports its outcome to fn on another goroutine.
func (c *Conn) CallFunc(ctx context.Context, method string, args, reply interface{}, fn func(error)) {
	go func() {
		fn(c.Call(ctx, method, args, reply))
	}()
}

// Stop terminates the backend process and closes the connection. It is
// safe to call more than once and on a process that already died.
func (c *Conn) Stop() error {
	c.once.Do(func() {
		c.stopped.Store(true)
		c.cancel()
		if c.proc != nil {
			if err := c.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				c.log.Warn("kill backend", "pid", c.proc.Pid, "err", err)
			}
		}
		<-c.ready
		if c.conn != nil {
			c.conn.Close()
		}
		c.log.Info("backend stopped")
	})
	return nil
}

func callError(method string, err error) error {
	if err == nil {
		return nil
	}
	var se rpc.ServerError
	if errors.As(err, &se) {
		return dbg.CallFailed(method, string(se))
	}
	return dbg.Unavailable(method, err)
}
