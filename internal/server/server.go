// Package server wires the connection loop, the RESP2 codec, and the
// command engine together into a runnable key/value server.
package server

import (
	"github.com/minidis/minidis"
	"github.com/minidis/minidis/internal/command"
	"github.com/minidis/minidis/internal/config"
	"github.com/minidis/minidis/internal/keyspace"
	"github.com/minidis/minidis/internal/logging"
	"github.com/minidis/minidis/pkg/resp"
)

// Server owns the keyspace, the command engine, and the connection loop
// hub. It is built once per process from a config.Config.
type Server struct {
	cfg    *config.Config
	engine *command.Engine
	hub    *minidis.Hub
	log    logging.Logger
}

// New builds a Server from cfg. It does not start listening; call Start for
// that.
func New(cfg *config.Config, log logging.Logger) *Server {
	ks := keyspace.New(cfg.Shards)
	cmdEngine := command.New(ks)

	s := &Server{cfg: cfg, engine: cmdEngine, log: log}
	s.hub = minidis.NewHub(s.onOpened, s.onClosed, s.onFrame)
	return s
}

func (s *Server) onOpened(c *minidis.Conn) ([]byte, minidis.Action) {
	s.log.Debugf("connection opened: %s", c.RemoteAddr())
	return nil, minidis.None
}

func (s *Server) onClosed(c *minidis.Conn, err error) minidis.Action {
	if err != nil {
		s.log.Debugf("connection closed: %s: %v", c.RemoteAddr(), err)
	} else {
		s.log.Debugf("connection closed: %s", c.RemoteAddr())
	}
	return minidis.None
}

// onFrame turns one decoded RESP2 value into a command reply. Per the
// protocol, a client command is always a non-null array of non-null bulk
// strings; anything else is a protocol error with no resynchronization
// point, so the connection is closed after the error reply.
func (s *Server) onFrame(c *minidis.Conn, frame resp.Value) (resp.Value, minidis.Action) {
	name, args, ok := commandArgs(frame)
	if !ok {
		return resp.NewError("ERR Protocol error: expected array of bulk strings"), minidis.Close
	}
	if name == "" {
		return resp.NewError("ERR unknown command ''"), minidis.None
	}
	return s.engine.Execute(name, args), minidis.None
}

// commandArgs extracts a command name and its arguments from a decoded RESP2
// array-of-bulk-strings frame.
func commandArgs(frame resp.Value) (name string, args [][]byte, ok bool) {
	if frame.Kind != resp.KindArray || frame.ArrayIsNil || len(frame.Array) == 0 {
		return "", nil, false
	}
	for _, item := range frame.Array {
		if item.Kind != resp.KindBulk || item.BulkIsNil {
			return "", nil, false
		}
	}
	name = string(frame.Array[0].Bulk)
	args = make([][]byte, len(frame.Array)-1)
	for i, item := range frame.Array[1:] {
		args[i] = item.Bulk
	}
	return name, args, true
}

// Start blocks, listening on the configured address until Stop is called or
// an error occurs.
func (s *Server) Start() error {
	s.log.Infof("listening on %s", s.cfg.Address())
	return minidis.ListenAndServe(s.cfg.Address(), minidis.Options{
		Multicore: true,
	}, s.hub)
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	return s.hub.Close()
}
