package dap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
)

// Server accepts DAP clients over TCP, one at a time. It stops after the
// first session that ends with a disconnect.
type Server struct {
	addr     string
	cfg      Config
	log      *slog.Logger
	listener net.Listener
}

func NewServer(addr string, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{addr: addr, cfg: cfg, log: cfg.Logger.With("component", "server")}
}

// Listen binds the server address. Run calls it when needed.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.log.Info("listening", "addr", l.Addr().String())
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	defer s.listener.Close()
	stop := context.AfterFunc(ctx, func() { s.listener.Close() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.log.Info("client connected", "remote", conn.RemoteAddr().String())
		sess := NewSession(conn, s.cfg)
		err = sess.Serve(ctx)
		conn.Close()
		if errors.Is(err, io.EOF) {
			return err
		}
		if err != nil {
			s.log.Error("session", "id", sess.ID(), "err", err)
		}
	}
}
