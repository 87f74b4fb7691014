package command

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// ErrSyntax is returned by option parsing for any malformed SET option
// clause; the caller turns it into a RESP error reply.
var ErrSyntax = errors.New("ERR syntax error")

// ErrNotInteger is returned when an option that takes an integer argument
// (EX, PX, EXAT, PXAT) is given a non-integer value.
var ErrNotInteger = errors.New("ERR value is not an integer or out of range")

// expiryKind distinguishes the four ways SET can specify a deadline.
type expiryKind int

const (
	expiryNone expiryKind = iota
	expirySeconds
	expiryMillis
	expiryUnixSeconds
	expiryUnixMillis
)

// setOptions is the parsed, not-yet-validated result of scanning SET's
// trailing argument list.
type setOptions struct {
	expiryKind  expiryKind
	expiryValue int64
	keepTTL     bool
	nx          bool
	xx          bool
	get         bool
}

// parseSetOptions scans the arguments following SET's mandatory key and
// value. It recognizes EX/PX/EXAT/PXAT (each consuming one further
// argument), KEEPTTL, NX, XX, and GET, matched case-insensitively. It
// rejects unknown tokens, a missing value after a value-taking option, more
// than one time-based option, KEEPTTL combined with a time-based option,
// and NX combined with XX.
func parseSetOptions(args [][]byte) (setOptions, error) {
	var opts setOptions
	i := 0
	for i < len(args) {
		tok := strings.ToUpper(string(args[i]))
		switch tok {
		case "EX", "PX", "EXAT", "PXAT":
			if opts.expiryKind != expiryNone {
				return setOptions{}, ErrSyntax
			}
			if i+1 >= len(args) {
				return setOptions{}, ErrSyntax
			}
			n, ok := parseInt64(args[i+1])
			if !ok {
				return setOptions{}, ErrNotInteger
			}
			switch tok {
			case "EX":
				opts.expiryKind = expirySeconds
			case "PX":
				opts.expiryKind = expiryMillis
			case "EXAT":
				opts.expiryKind = expiryUnixSeconds
			case "PXAT":
				opts.expiryKind = expiryUnixMillis
			}
			opts.expiryValue = n
			i += 2
		case "KEEPTTL":
			opts.keepTTL = true
			i++
		case "NX":
			opts.nx = true
			i++
		case "XX":
			opts.xx = true
			i++
		case "GET":
			opts.get = true
			i++
		default:
			return setOptions{}, ErrSyntax
		}
	}
	if opts.keepTTL && opts.expiryKind != expiryNone {
		return setOptions{}, ErrSyntax
	}
	if opts.nx && opts.xx {
		return setOptions{}, ErrSyntax
	}
	return opts, nil
}

// parseInt64 parses a base-10 signed integer with no surrounding
// whitespace, matching the strictness real Redis applies to numeric
// command arguments.
func parseInt64(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	neg := false
	i := 0
	switch b[0] {
	case '-':
		neg = true
		i++
	case '+':
		i++
	}
	if i == len(b) {
		return 0, false
	}
	limit := uint64(math.MaxInt64)
	if neg {
		limit++
	}
	var n uint64
	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, false
		}
		d := uint64(b[i] - '0')
		if n > (limit-d)/10 {
			return 0, false
		}
		n = n*10 + d
	}
	if neg {
		return -int64(n), true
	}
	return int64(n), true
}

// absoluteDeadlineMillis converts a parsed time-based option into an
// absolute millisecond deadline as of nowMillis.
func absoluteDeadlineMillis(kind expiryKind, value int64, nowMillis int64) int64 {
	switch kind {
	case expirySeconds:
		return nowMillis + value*1000
	case expiryMillis:
		return nowMillis + value
	case expiryUnixSeconds:
		return value * 1000
	case expiryUnixMillis:
		return value
	default:
		return 0
	}
}
