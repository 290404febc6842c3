// Package dap serves the Debug Adapter Protocol on top of a debugger session.
package dap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/go-dap"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gni.dev/dlvdap/internal/dbg/debugger"
)

const DefaultQueueSize = 16

type Config struct {
	// QueueSize bounds the requests waiting for the worker.
	QueueSize int
	// ForwardOutput sends backend output to the client as output events.
	ForwardOutput bool
	Debugger      debugger.Config
	Logger        *slog.Logger
}

type handler func(ctx context.Context, m dap.Message)

// Session is one client connection. Requests are read on the calling
// goroutine and executed, one at a time and in order, by a single worker;
// disconnect is the exception and is handled as soon as it is read.
type Session struct {
	cfg Config
	id  string
	log *slog.Logger
	rw  io.ReadWriter

	wmu sync.Mutex
	seq int

	debugger    *debugger.Debugger
	handlers    map[string]handler
	initialized sync.Once
}

func NewSession(rw io.ReadWriter, cfg Config) *Session {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	id := uuid.NewString()
	s := &Session{
		cfg: cfg,
		id:  id,
		log: cfg.Logger.With("session", id),
		rw:  rw,
	}
	dcfg := cfg.Debugger
	dcfg.Logger = s.log
	s.debugger = debugger.New(dcfg, s)
	s.handlers = map[string]handler{
		"initialize":        s.onInitialize,
		"launch":            s.onLaunch,
		"attach":            s.onAttach,
		"configurationDone": s.onConfigurationDone,
		"setBreakpoints":    s.onSetBreakpoints,
		"threads":           s.onThreads,
		"stackTrace":        s.onStackTrace,
		"scopes":            s.onScopes,
		"variables":         s.onVariables,
		"continue":          s.onContinue,
		"next":              s.onNext,
		"stepIn":            s.onStepIn,
		"stepOut":           s.onStepOut,
		"pause":             s.onPause,
		"evaluate":          s.onEvaluate,
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Serve handles requests until the client disconnects or goes away, and
// returns io.EOF in both cases. The backend never outlives Serve.
func (s *Session) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		if c, ok := s.rw.(io.Closer); ok {
			c.Close()
		}
	})
	defer stop()

	s.log.Info("session started")
	queue := make(chan dap.Message, s.cfg.QueueSize)
	var g errgroup.Group
	g.Go(func() error {
		for m := range queue {
			s.dispatch(ctx, m)
		}
		return nil
	})
	drain := sync.OnceFunc(func() {
		close(queue)
		g.Wait()
	})

	err := s.read(queue, drain)
	s.debugger.Disconnect()
	drain()
	if err != nil && !errors.Is(err, io.EOF) {
		s.log.Error("session failed", "err", err)
	} else {
		s.log.Info("session ended")
	}
	return err
}

func (s *Session) read(queue chan<- dap.Message, drain func()) error {
	br := bufio.NewReader(s.rw)
	for {
		m, err := dap.ReadProtocolMessage(br)
		if err != nil {
			var ferr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &ferr) && ferr.FieldName == "command" {
				s.log.Warn("unknown request", "seq", ferr.Seq, "command", ferr.FieldValue)
				s.send(newErrResponse(ferr.Seq, ferr.FieldValue, processingErr, "unknown command", false))
				continue
			}
			return err
		}
		req, ok := m.(dap.RequestMessage)
		if !ok {
			s.send(newErrResponse(m.GetSeq(), "unknown", processingErr, "only requests are allowed", false))
			return io.EOF
		}
		r := req.GetRequest()
		if r.Command == "disconnect" {
			s.onDisconnect(m.(*dap.DisconnectRequest), drain)
			return io.EOF
		}
		if _, ok := s.handlers[r.Command]; !ok {
			s.log.Warn("unsupported request", "seq", r.Seq, "command", r.Command)
			s.send(newErrResponse(r.Seq, r.Command, processingErr, "unsupported command", false))
			continue
		}
		select {
		case queue <- m:
		default:
			s.send(newErrResponse(r.Seq, r.Command, processingErr, "too many pending requests", false))
		}
	}
}

func (s *Session) dispatch(ctx context.Context, m dap.Message) {
	r := m.(dap.RequestMessage).GetRequest()
	s.log.Debug("request", "seq", r.Seq, "command", r.Command)
	s.handlers[r.Command](ctx, m)
}

// onDisconnect tears the backend down first, which fails any call the
// worker is blocked on, and answers once the queue is empty.
func (s *Session) onDisconnect(req *dap.DisconnectRequest, drain func()) {
	s.debugger.Disconnect()
	drain()
	s.send(&dap.DisconnectResponse{Response: newResponse(req.Request)})
}

func (s *Session) send(m dap.Message) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.seq++
	switch m := m.(type) {
	case dap.ResponseMessage:
		m.GetResponse().Seq = s.seq
	case dap.EventMessage:
		m.GetEvent().Seq = s.seq
	}
	if err := dap.WriteProtocolMessage(s.rw, m); err != nil {
		s.log.Error("write message", "err", err)
	}
}

func (s *Session) replyErr(req dap.Request, e dapError, err error, show bool) {
	s.log.Warn("request failed", "command", req.Command, "seq", req.Seq, "err", err)
	s.send(newErrResponse(req.Seq, req.Command, e, err.Error(), show))
}

// Stopped, Terminated and Output make the session the debugger's event sink.

func (s *Session) Stopped(reason string, thread int64) {
	s.send(&dap.StoppedEvent{
		Event: newEvent("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            reason,
			ThreadId:          int(thread),
			AllThreadsStopped: true,
		},
	})
}

func (s *Session) Terminated(exitCode int) {
	s.send(&dap.ExitedEvent{Event: newEvent("exited"), Body: dap.ExitedEventBody{ExitCode: exitCode}})
	s.send(&dap.TerminatedEvent{Event: newEvent("terminated")})
}

func (s *Session) Output(category, text string) {
	if !s.cfg.ForwardOutput {
		return
	}
	s.output(category, text)
}

func (s *Session) output(category, text string) {
	s.send(&dap.OutputEvent{Event: newEvent("output"), Body: dap.OutputEventBody{Category: category, Output: text}})
}

func (s *Session) console(format string, args ...interface{}) {
	s.output("console", fmt.Sprintf(format, args...)+"\n")
}
