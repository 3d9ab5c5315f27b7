package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewErrorError(t *testing.T) {
	err := NewTransportError(ErrCodeConnection, "backend unreachable", io.EOF).
		WithComponent("Counter")

	msg := err.Error()
	assert.Contains(t, msg, "[ERR_CONNECTION]")
	assert.Contains(t, msg, "component:Counter")
	assert.Contains(t, msg, "backend unreachable")
	assert.Contains(t, msg, "EOF")
}

func TestViewErrorUnwrapAndIs(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := NewProtocolError(ErrCodeMalformedBody, "bad body", cause)

	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.True(t, errors.Is(err, &ViewError{Type: ErrorTypeProtocol, Code: ErrCodeMalformedBody}))
	assert.False(t, errors.Is(err, &ViewError{Type: ErrorTypeTransport, Code: ErrCodeMalformedBody}))
}

func TestPredicates(t *testing.T) {
	testCases := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"resolution", NewResolutionError("Missing"), IsResolution},
		{"transport", NewTransportError(ErrCodeTimeout, "timeout", nil), IsTransport},
		{"protocol", NewProtocolError(ErrCodeLengthMismatch, "short", nil), IsProtocol},
		{"application", NewApplicationError("boom"), IsApplication},
		{"supervision", NewSupervisionError(ErrCodeHealthTimeout, "never healthy", nil), IsSupervision},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.check(tc.err))
			assert.True(t, tc.check(fmt.Errorf("wrapped: %w", tc.err)))
			assert.False(t, tc.check(errors.New("plain")))
		})
	}
}

func TestHasErrorCode(t *testing.T) {
	inner := NewTransportError(ErrCodeBrokenConnection, "reset", nil)
	outer := Wrap(inner, ErrorTypeInternal, ErrCodeInternalError, "render failed")

	assert.True(t, HasErrorCode(outer, ErrCodeInternalError))
	assert.True(t, HasErrorCode(outer, ErrCodeBrokenConnection))
	assert.False(t, HasErrorCode(outer, ErrCodeTimeout))
	assert.False(t, HasErrorCode(errors.New("plain"), ErrCodeTimeout))
}

func TestWrapPreservesComponent(t *testing.T) {
	inner := NewResolutionError("Card")
	wrapped := Wrap(inner, ErrorTypeInternal, ErrCodeInternalError, "outer")

	require.NotNil(t, wrapped)
	assert.Equal(t, "Card", wrapped.Component)
	assert.True(t, wrapped.Recoverable)
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "x", "y"))
}

func TestGetRootCause(t *testing.T) {
	root := io.EOF
	err := fmt.Errorf("a: %w", NewTransportError(ErrCodeConnection, "b", root))

	assert.Equal(t, root, GetRootCause(err))
	assert.Nil(t, GetRootCause(nil))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "ReferenceError: x is not defined",
		UserMessage(NewApplicationError("ReferenceError: x is not defined")))
	assert.Contains(t, UserMessage(NewResolutionError("Nope")), "component not found: Nope")
	assert.Equal(t, "", UserMessage(nil))
}

func TestGetErrorContext(t *testing.T) {
	err := NewApplicationError("boom").WithComponent("Chart").WithContext("island", "rv-1")

	ctx := GetErrorContext(err)
	assert.Equal(t, "Chart", ctx["component"])
	assert.Equal(t, "rv-1", ctx["island"])
	assert.Equal(t, "application", ctx["type"])

	plain := GetErrorContext(errors.New("x"))
	assert.Equal(t, "unknown", plain["type"])
}

func TestCombineErrors(t *testing.T) {
	assert.Nil(t, CombineErrors(nil, nil))

	single := errors.New("one")
	assert.Equal(t, single, CombineErrors(nil, single))

	combined := CombineErrors(errors.New("one"), errors.New("two"))
	var ve *ViewError
	require.True(t, errors.As(combined, &ve))
	assert.Equal(t, 2, ve.Context["error_count"])
}

func TestErrorCollector(t *testing.T) {
	collector := NewErrorCollector()
	assert.False(t, collector.HasErrors())
	assert.Equal(t, "no errors", collector.Summary())

	collector.Add(RenderFailure{Component: "A", IslandID: "rv-1", Err: NewResolutionError("A")})
	collector.Add(RenderFailure{Component: "B", IslandID: "rv-2", Err: NewApplicationError("boom")})
	collector.AddError(nil)
	collector.AddError(errors.New("untyped"))

	assert.True(t, collector.HasErrors())
	assert.Equal(t, 3, collector.Count())
	assert.Equal(t, []string{"A", "B"}, collector.Components())
	assert.Equal(t, "resolution=1 application=1 internal=1", collector.Summary())

	failures := collector.Failures()
	require.Len(t, failures, 2)
	assert.False(t, failures[0].Timestamp.IsZero())
	assert.Equal(t, "B (rv-2): [ERR_RENDER_FAILED] boom", failures[1].Error())

	all := collector.GetAllErrors()
	require.Len(t, all, 3)
	assert.True(t, IsResolution(all[0]))

	collector.Clear()
	assert.False(t, collector.HasErrors())
}
