// Package minidis provides a small RESP2 server framework built on top of
// the gnet event-loop library. It handles connection bookkeeping, buffering,
// and command pipelining; callers supply a handler that turns one decoded
// command frame into a reply.
//
// # Basic Usage
//
//	hub := minidis.NewHub(
//	    func(c *minidis.Conn) (out []byte, action minidis.Action) {
//	        return nil, minidis.None
//	    },
//	    func(c *minidis.Conn, err error) (action minidis.Action) {
//	        return minidis.None
//	    },
//	    func(c *minidis.Conn, frame resp.Value) (resp.Value, minidis.Action) {
//	        return resp.NewSimpleString("PONG"), minidis.None
//	    },
//	)
//	err := minidis.ListenAndServe("tcp://127.0.0.1:9999", minidis.Options{Multicore: true}, hub)
package minidis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2"
	"github.com/valyala/bytebufferpool"

	"github.com/minidis/minidis/pkg/resp"
)

// Action represents the action to take after an event handler runs.
type Action int

const (
	// None leaves the connection open and the server running.
	None Action = iota
	// Close closes the connection after writing any pending reply.
	Close
	// Shutdown stops the whole server.
	Shutdown
)

// Conn wraps a gnet.Conn, giving handlers access to per-connection context.
type Conn struct {
	gnet.Conn
}

// Options configures a Hub's gnet engine. It mirrors the options the
// underlying gnet.Run accepts.
type Options struct {
	Multicore        bool
	LockOSThread     bool
	ReadBufferCap    int
	LB               gnet.LoadBalancing
	NumEventLoop     int
	ReusePort        bool
	Ticker           bool
	TCPKeepAlive     time.Duration
	TCPKeepCount     int
	TCPKeepInterval  time.Duration
	TCPNoDelay       gnet.TCPSocketOpt
	SocketRecvBuffer int
	SocketSendBuffer int
	EdgeTriggeredIO  bool
}

// Handler turns one decoded RESP2 command frame into a reply.
type Handler func(c *Conn, frame resp.Value) (resp.Value, Action)

// Hub is a gnet.EventHandler that decodes RESP2 frames off each connection
// and dispatches them to a Handler.
type Hub struct {
	onOpened func(c *Conn) (out []byte, action Action)
	onClosed func(c *Conn, err error) (action Action)
	handler  Handler

	bufs    map[gnet.Conn]*connBuffer
	bufsMu  sync.RWMutex
	mu      sync.Mutex
	running bool
	engine  gnet.Engine
}

// connBuffer holds the streaming decoder for one connection. A *resp.Decoder
// tolerates partial reads, so nothing else needs to be buffered here.
type connBuffer struct {
	decoder *resp.Decoder
}

// NewHub builds a Hub from the given lifecycle and command handlers.
func NewHub(
	onOpened func(c *Conn) (out []byte, action Action),
	onClosed func(c *Conn, err error) (action Action),
	handler Handler,
) *Hub {
	return &Hub{
		bufs:     make(map[gnet.Conn]*connBuffer),
		onOpened: onOpened,
		onClosed: onClosed,
		handler:  handler,
	}
}

func (h *Hub) OnBoot(eng gnet.Engine) gnet.Action {
	h.mu.Lock()
	h.engine = eng
	h.mu.Unlock()
	return gnet.None
}

func (h *Hub) OnShutdown(eng gnet.Engine) {}

func (h *Hub) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	h.bufsMu.Lock()
	h.bufs[c] = &connBuffer{decoder: resp.NewDecoder()}
	h.bufsMu.Unlock()
	out, act := h.onOpened(&Conn{Conn: c})
	return out, gnet.Action(act)
}

func (h *Hub) OnClose(c gnet.Conn, err error) (action gnet.Action) {
	h.bufsMu.Lock()
	delete(h.bufs, c)
	h.bufsMu.Unlock()
	return gnet.Action(h.onClosed(&Conn{Conn: c}, err))
}

// OnTraffic reads all bytes currently available on c, feeds them to the
// connection's decoder, and runs the handler once per complete frame,
// accumulating replies into a single pooled buffer before writing them out.
// A decode error has no reliable resynchronization point, so it always
// closes the connection after flushing the replies accumulated so far plus
// an "ERR Protocol error" reply.
func (h *Hub) OnTraffic(c gnet.Conn) (action gnet.Action) {
	h.bufsMu.RLock()
	cb, ok := h.bufs[c]
	h.bufsMu.RUnlock()
	if !ok {
		return gnet.Close
	}

	data, _ := c.Next(-1)
	if len(data) == 0 {
		return gnet.None
	}
	cb.decoder.Feed(data)

	out := bytebufferpool.Get()
	defer bytebufferpool.Put(out)

	conn := &Conn{Conn: c}
	for {
		frame, ok, err := cb.decoder.Next()
		if err != nil {
			out.B = resp.AppendError(out.B, "ERR Protocol error: "+err.Error())
			if out.Len() > 0 {
				_, _ = c.Write(out.B)
			}
			return gnet.Close
		}
		if !ok {
			break
		}

		reply, status := h.handler(conn, frame)
		out.B = reply.Encode(out.B)

		if status == Close {
			if out.Len() > 0 {
				_, _ = c.Write(out.B)
			}
			return gnet.Close
		}
		if status == Shutdown {
			if out.Len() > 0 {
				_, _ = c.Write(out.B)
			}
			return gnet.Shutdown
		}
	}

	if out.Len() > 0 {
		_, _ = c.Write(out.B)
	}
	return gnet.None
}

func (h *Hub) OnTick() (delay time.Duration, action gnet.Action) {
	return 0, gnet.None
}

// ListenAndServe starts the Hub listening on addr (e.g. "tcp://0.0.0.0:9999")
// and blocks until the server stops.
func ListenAndServe(addr string, options Options, h *Hub) error {
	var opts []gnet.Option
	if options.Multicore {
		opts = append(opts, gnet.WithMulticore(true))
	}
	if options.LockOSThread {
		opts = append(opts, gnet.WithLockOSThread(true))
	}
	if options.ReadBufferCap > 0 {
		opts = append(opts, gnet.WithReadBufferCap(options.ReadBufferCap))
	}
	if options.NumEventLoop > 0 {
		opts = append(opts, gnet.WithNumEventLoop(options.NumEventLoop))
	} else if options.LB != gnet.RoundRobin {
		opts = append(opts, gnet.WithLoadBalancing(options.LB))
	}
	if options.ReusePort {
		opts = append(opts, gnet.WithReusePort(true))
	}
	if options.Ticker {
		opts = append(opts, gnet.WithTicker(true))
	}
	if options.TCPKeepAlive > 0 {
		opts = append(opts, gnet.WithTCPKeepAlive(options.TCPKeepAlive))
	}
	if options.TCPKeepCount > 0 {
		opts = append(opts, gnet.WithTCPKeepCount(options.TCPKeepCount))
	}
	if options.TCPKeepInterval > 0 {
		opts = append(opts, gnet.WithTCPKeepInterval(options.TCPKeepInterval))
	}
	opts = append(opts, gnet.WithTCPNoDelay(options.TCPNoDelay))
	if options.SocketRecvBuffer > 0 {
		opts = append(opts, gnet.WithSocketRecvBuffer(options.SocketRecvBuffer))
	}
	if options.SocketSendBuffer > 0 {
		opts = append(opts, gnet.WithSocketSendBuffer(options.SocketSendBuffer))
	}
	if options.EdgeTriggeredIO {
		opts = append(opts, gnet.WithEdgeTriggeredIO(true))
	}

	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	err := gnet.Run(h, addr, opts...)

	h.mu.Lock()
	h.running = false
	h.mu.Unlock()

	return err
}

// Close gracefully stops a running Hub. Safe to call at most once per run.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return errors.New("server not running")
	}
	h.running = false
	return h.engine.Stop(context.Background())
}
