package dbg

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errorTests = []struct {
	err  error
	is   error
	code Code
	msg  string
}{
	{
		err:  Unavailable("Command", io.EOF),
		is:   ErrBackendUnavailable,
		code: BackendUnavailable,
		msg:  "BackendUnavailable Command: EOF",
	},
	{
		err:  CallFailed("CreateBreakpoint", "could not find main.go:20"),
		is:   ErrBackendCallFailed,
		code: BackendCallFailed,
		msg:  "BackendCallFailed CreateBreakpoint: could not find main.go:20",
	},
	{
		err:  Unsupported("pause"),
		is:   ErrUnsupported,
		code: UnsupportedOperation,
		msg:  "UnsupportedOperation pause: not supported",
	},
	{
		err:  fmt.Errorf("wrapped: %w", Invalid("launch", errors.New("missing program"))),
		is:   ErrInvalidRequest,
		code: InvalidRequest,
		msg:  "wrapped: InvalidRequest launch: missing program",
	},
}

func TestErrors(t *testing.T) {
	for i, test := range errorTests {
		assert.ErrorIs(t, test.err, test.is, "test #%d", i)
		assert.Equal(t, test.code, CodeOf(test.err), "test #%d", i)
		assert.Equal(t, test.msg, test.err.Error(), "test #%d", i)
	}
}

func TestErrorsDistinctCodes(t *testing.T) {
	err := Unavailable("ListGoroutines", nil)
	assert.False(t, errors.Is(err, ErrBackendCallFailed))
	assert.Equal(t, Code(0), CodeOf(io.EOF))
	assert.ErrorIs(t, Unavailable("x", io.EOF), io.EOF)
}
