package dap

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/go-dap"

	"gni.dev/dlvdap/internal/dbg"
	"gni.dev/dlvdap/internal/dbg/debugger"
)

var errNoSource = errors.New("source path is required")

type launchArgs struct {
	Program     string   `json:"program"`
	Mode        string   `json:"mode"`
	Args        []string `json:"args"`
	Cwd         string   `json:"cwd"`
	BuildFlags  string   `json:"buildFlags"`
	StopOnEntry *bool    `json:"stopOnEntry"`
}

type attachArgs struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	StopOnEntry *bool  `json:"stopOnEntry"`
}

func (s *Session) onInitialize(ctx context.Context, m dap.Message) {
	req := m.(*dap.InitializeRequest)
	s.log.Info("initialize", "client", req.Arguments.ClientID, "adapter", req.Arguments.AdapterID)
	s.debugger.Initialize()
	s.send(&dap.InitializeResponse{
		Response: newResponse(req.Request),
		Body: dap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsEvaluateForHovers:        true,
		},
	})
	s.initialized.Do(func() {
		s.send(&dap.InitializedEvent{Event: newEvent("initialized")})
	})
}

// The initial continue of launch and attach waits for configurationDone,
// after the client has sent its breakpoints.

func (s *Session) onLaunch(ctx context.Context, m dap.Message) {
	req := m.(*dap.LaunchRequest)
	var args launchArgs
	if len(req.Arguments) > 0 {
		if err := json.Unmarshal(req.Arguments, &args); err != nil {
			s.replyErr(req.Request, parseErr, err, true)
			return
		}
	}
	err := s.debugger.Launch(ctx, debugger.LaunchOptions{
		Program:     args.Program,
		Mode:        args.Mode,
		Args:        args.Args,
		Dir:         args.Cwd,
		BuildFlags:  args.BuildFlags,
		StopOnEntry: args.StopOnEntry,
		Deferred:    true,
	})
	if err != nil {
		s.replyErr(req.Request, errorFor(err, launchErr), err, true)
		return
	}
	s.send(&dap.LaunchResponse{Response: newResponse(req.Request)})
}

func (s *Session) onAttach(ctx context.Context, m dap.Message) {
	req := m.(*dap.AttachRequest)
	var args attachArgs
	if len(req.Arguments) > 0 {
		if err := json.Unmarshal(req.Arguments, &args); err != nil {
			s.replyErr(req.Request, parseErr, err, true)
			return
		}
	}
	err := s.debugger.Attach(ctx, debugger.AttachOptions{
		Host:        args.Host,
		Port:        args.Port,
		StopOnEntry: args.StopOnEntry,
		Deferred:    true,
	})
	if err != nil {
		s.replyErr(req.Request, errorFor(err, launchErr), err, true)
		return
	}
	s.send(&dap.AttachResponse{Response: newResponse(req.Request)})
}

func (s *Session) onConfigurationDone(ctx context.Context, m dap.Message) {
	req := m.(*dap.ConfigurationDoneRequest)
	s.send(&dap.ConfigurationDoneResponse{Response: newResponse(req.Request)})
	if err := s.debugger.ConfigurationDone(ctx); err != nil {
		s.log.Warn("initial continue failed", "err", err)
		s.console("continue failed: %v", err)
	}
}

func (s *Session) onSetBreakpoints(ctx context.Context, m dap.Message) {
	req := m.(*dap.SetBreakpointsRequest)
	path := req.Arguments.Source.Path
	if path == "" {
		s.replyErr(req.Request, parseErr, errNoSource, false)
		return
	}
	lines := req.Arguments.Lines
	if req.Arguments.Breakpoints != nil {
		lines = make([]int, 0, len(req.Arguments.Breakpoints))
		for _, bp := range req.Arguments.Breakpoints {
			lines = append(lines, bp.Line)
		}
	}
	bps, err := s.debugger.SetBreakpoints(ctx, path, lines)
	if err != nil {
		s.replyErr(req.Request, errorFor(err, setBreakpointsErr), err, false)
		return
	}
	s.send(&dap.SetBreakpointsResponse{
		Response: newResponse(req.Request),
		Body:     dap.SetBreakpointsResponseBody{Breakpoints: toBreakpoints(path, bps)},
	})
}

func (s *Session) onThreads(ctx context.Context, m dap.Message) {
	req := m.(*dap.ThreadsRequest)
	threads, err := s.debugger.Threads(ctx)
	if err != nil {
		s.replyErr(req.Request, errorFor(err, commandErr), err, false)
		return
	}
	s.send(&dap.ThreadsResponse{
		Response: newResponse(req.Request),
		Body:     dap.ThreadsResponseBody{Threads: toThreads(threads)},
	})
}

func (s *Session) onStackTrace(ctx context.Context, m dap.Message) {
	req := m.(*dap.StackTraceRequest)
	start, levels := req.Arguments.StartFrame, req.Arguments.Levels
	if start < 0 {
		start = 0
	}
	if levels > 0 {
		levels += start
	}
	frames, err := s.debugger.StackTrace(ctx, int64(req.Arguments.ThreadId), levels)
	if err != nil {
		s.replyErr(req.Request, errorFor(err, commandErr), err, false)
		return
	}
	total := len(frames)
	if start > total {
		start = total
	}
	s.send(&dap.StackTraceResponse{
		Response: newResponse(req.Request),
		Body: dap.StackTraceResponseBody{
			StackFrames: toStackFrames(frames[start:]),
			TotalFrames: total,
		},
	})
}

func (s *Session) onScopes(ctx context.Context, m dap.Message) {
	req := m.(*dap.ScopesRequest)
	scopes, err := s.debugger.Scopes(req.Arguments.FrameId)
	if err != nil {
		s.replyErr(req.Request, errorFor(err, commandErr), err, false)
		return
	}
	s.send(&dap.ScopesResponse{
		Response: newResponse(req.Request),
		Body:     dap.ScopesResponseBody{Scopes: toScopes(scopes)},
	})
}

func (s *Session) onVariables(ctx context.Context, m dap.Message) {
	req := m.(*dap.VariablesRequest)
	vars, err := s.debugger.Variables(ctx, req.Arguments.VariablesReference)
	if err != nil {
		s.replyErr(req.Request, errorFor(err, commandErr), err, false)
		return
	}
	s.send(&dap.VariablesResponse{
		Response: newResponse(req.Request),
		Body:     dap.VariablesResponseBody{Variables: toVariables(vars)},
	})
}

func (s *Session) onContinue(ctx context.Context, m dap.Message) {
	req := m.(*dap.ContinueRequest)
	s.control(ctx, req.Request, &dap.ContinueResponse{
		Response: newResponse(req.Request),
		Body:     dap.ContinueResponseBody{AllThreadsContinued: true},
	}, s.debugger.Continue)
}

func (s *Session) onNext(ctx context.Context, m dap.Message) {
	req := m.(*dap.NextRequest)
	s.control(ctx, req.Request, &dap.NextResponse{Response: newResponse(req.Request)}, s.debugger.Next)
}

func (s *Session) onStepIn(ctx context.Context, m dap.Message) {
	req := m.(*dap.StepInRequest)
	s.control(ctx, req.Request, &dap.StepInResponse{Response: newResponse(req.Request)}, s.debugger.StepIn)
}

// control answers before running the command; the outcome reaches the
// client as a stopped or terminated event. A failed command sends neither.
func (s *Session) control(ctx context.Context, req dap.Request, resp dap.Message, run func(context.Context) error) {
	if err := s.debugger.Available(); err != nil {
		s.replyErr(req, errorFor(err, commandErr), err, false)
		return
	}
	s.send(resp)
	if err := run(ctx); err != nil {
		s.console("%s failed: %v", req.Command, err)
	}
}

func (s *Session) onStepOut(ctx context.Context, m dap.Message) {
	req := m.(*dap.StepOutRequest)
	resp := &dap.StepOutResponse{Response: newResponse(req.Request)}
	s.unsupported(&resp.Response, s.debugger.StepOut(ctx))
	s.send(resp)
}

func (s *Session) onPause(ctx context.Context, m dap.Message) {
	req := m.(*dap.PauseRequest)
	resp := &dap.PauseResponse{Response: newResponse(req.Request)}
	s.unsupported(&resp.Response, s.debugger.Pause(ctx))
	s.send(resp)
}

// unsupported acknowledges an operation the backend bridge does not offer.
func (s *Session) unsupported(resp *dap.Response, err error) {
	if errors.Is(err, dbg.ErrUnsupported) {
		s.log.Debug("unsupported request", "command", resp.Command)
		resp.Message = "unsupported"
	}
}

func (s *Session) onEvaluate(ctx context.Context, m dap.Message) {
	req := m.(*dap.EvaluateRequest)
	result, err := s.debugger.Evaluate(req.Arguments.Expression)
	if err != nil {
		s.replyErr(req.Request, errorFor(err, commandErr), err, false)
		return
	}
	s.send(&dap.EvaluateResponse{
		Response: newResponse(req.Request),
		Body:     dap.EvaluateResponseBody{Result: result},
	})
}
