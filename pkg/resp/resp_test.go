package resp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendSimpleString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []byte
	}{
		{"plain", "OK", []byte("+OK\r\n")},
		{"empty", "", []byte("+\r\n")},
		{"strips newlines", "Hello\nWorld", []byte("+Hello World\r\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AppendSimpleString(nil, tt.input))
		})
	}
}

func TestAppendInteger(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected []byte
	}{
		{"zero", 0, []byte(":0\r\n")},
		{"positive", 123, []byte(":123\r\n")},
		{"negative", -456, []byte(":-456\r\n")},
		{"min", -9223372036854775808, []byte(":-9223372036854775808\r\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AppendInteger(nil, tt.input))
		})
	}
}

func TestAppendBulk(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected []byte
	}{
		{"empty", []byte{}, []byte("$0\r\n\r\n")},
		{"simple", []byte("hello"), []byte("$5\r\nhello\r\n")},
		{"binary", []byte{0x00, 0x01, 0x02}, []byte("$3\r\n\x00\x01\x02\r\n")},
		{"embedded crlf", []byte("a\r\nb"), []byte("$4\r\na\r\nb\r\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AppendBulk(nil, tt.input))
		})
	}
}

func TestAppendNullBulk(t *testing.T) {
	assert.Equal(t, []byte("$-1\r\n"), AppendNullBulk(nil))
}

func TestAppendNullArray(t *testing.T) {
	assert.Equal(t, []byte("*-1\r\n"), AppendNullArray(nil))
}

func valueEqual(t *testing.T, a, b Value) {
	t.Helper()
	require.Equal(t, a.Kind, b.Kind)
	switch a.Kind {
	case KindSimpleString, KindError:
		assert.Equal(t, a.Str, b.Str)
	case KindInteger:
		assert.Equal(t, a.Int, b.Int)
	case KindBulk:
		require.Equal(t, a.BulkIsNil, b.BulkIsNil)
		if !a.BulkIsNil {
			assert.Equal(t, string(a.Bulk), string(b.Bulk))
		}
	case KindArray:
		require.Equal(t, a.ArrayIsNil, b.ArrayIsNil)
		require.Len(t, b.Array, len(a.Array))
		for i := range a.Array {
			valueEqual(t, a.Array[i], b.Array[i])
		}
	}
}

func TestValueRoundTrip(t *testing.T) {
	values := []Value{
		NewSimpleString("PONG"),
		NewSimpleString(""),
		NewError("ERR boom"),
		NewInteger(0),
		NewInteger(-42),
		NewInteger(9223372036854775807),
		NewBulkString([]byte("hello world")),
		NewBulkString([]byte{}),
		NewBulkString([]byte{0, 1, 2, '\r', '\n'}),
		NewNullBulkString(),
		NewArray([]Value{NewBulkString([]byte("GET")), NewBulkString([]byte("key"))}),
		NewArray(nil),
		NewNullArray(),
		NewArray([]Value{NewNullBulkString(), NewInteger(1), NewSimpleString("ok")}),
	}

	for i, v := range values {
		encoded := v.Encode(nil)
		d := NewDecoder()
		d.Feed(encoded)
		decoded, ok, err := d.Next()
		require.NoError(t, err, "case %d", i)
		require.True(t, ok, "case %d", i)
		valueEqual(t, v, decoded)
		assert.False(t, d.Pending(), "case %d: leftover bytes after full frame", i)
	}
}

func TestDecoderFragmentedFeed(t *testing.T) {
	frame := []byte("*2\r\n$3\r\nGET\r\n$5\r\nmykey\r\n")
	d := NewDecoder()

	for i := 0; i < len(frame); i++ {
		d.Feed(frame[i : i+1])
		v, ok, err := d.Next()
		require.NoError(t, err)
		if i < len(frame)-1 {
			require.False(t, ok, "byte %d should still be incomplete", i)
			continue
		}
		require.True(t, ok)
		require.Equal(t, KindArray, v.Kind)
		require.Len(t, v.Array, 2)
		assert.Equal(t, "GET", string(v.Array[0].Bulk))
		assert.Equal(t, "mykey", string(v.Array[1].Bulk))
	}
}

func TestDecoderPipelinedFrames(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("*1\r\n$4\r\nPING\r\n*2\r\n$4\r\nECHO\r\n$2\r\nhi\r\n"))

	v1, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "PING", string(v1.Array[0].Bulk))

	v2, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ECHO", string(v2.Array[0].Bulk))
	assert.Equal(t, "hi", string(v2.Array[1].Bulk))

	assert.False(t, d.Pending())
}

func TestDecoderIncompleteThenComplete(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("*1\r\n$4\r\nPIN"))
	_, ok, err := d.Next()
	require.NoError(t, err)
	require.False(t, ok)

	d.Feed([]byte("G\r\n"))
	v, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "PING", string(v.Array[0].Bulk))
}

func TestDecoderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		err   error
	}{
		{"unknown type", []byte("!nope\r\n"), ErrUnknownType},
		{"bad integer", []byte(":abc\r\n"), ErrMalformedInteger},
		{"bad bulk length", []byte("$abc\r\n"), ErrMalformedInteger},
		{"negative length below -1", []byte("$-2\r\nxx\r\n"), ErrLengthOutOfRange},
		{"missing crlf after bulk payload", []byte("$3\r\nabcxx"), ErrMissingCRLF},
		{"missing crlf on line", []byte("+OK\n"), ErrMissingCRLF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			d.Feed(tt.input)
			_, ok, err := d.Next()
			require.False(t, ok)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDecoderOversizedBulkRejected(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("$536870913\r\n"))
	_, ok, err := d.Next()
	require.False(t, ok)
	require.ErrorIs(t, err, ErrLengthOutOfRange)
}

func TestDecoderAcceptsLeadingPlusOnIntegers(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte(":+42\r\n"))
	v, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), v.Int)

	// the encoder never emits a leading '+'
	assert.Equal(t, []byte(":42\r\n"), v.Encode(nil))
}
