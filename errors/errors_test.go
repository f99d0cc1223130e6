package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"no connection", ErrNoConnection, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid data", ErrInvalidData, false},
		{"slot mismatch", ErrSlotMismatch, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal timeout", WrapFatal(ErrConnectionTimeout, "C", "M", "dial"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err), "error: %v", test.err)
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"slot mismatch", ErrSlotMismatch, true},
		{"plugin failure", ErrPluginFailure, true},
		{"wrapped slot mismatch", fmt.Errorf("ctx: %w", ErrSlotMismatch), true},
		{"invalid config", ErrInvalidConfig, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"classified invalid", WrapInvalid(ErrSlotMismatch, "C", "M", "a"), false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsFatal(test.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.True(t, IsInvalid(ErrInvalidData))
	assert.True(t, IsInvalid(ErrUnknownFactory))
	assert.True(t, IsInvalid(WrapInvalid(errors.New("x"), "C", "M", "a")))
	assert.False(t, IsInvalid(ErrConnectionTimeout))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorFatal, Classify(ErrSlotMismatch))
	assert.Equal(t, ErrorInvalid, Classify(ErrInvalidData))
	assert.Equal(t, ErrorTransient, Classify(errors.New("something odd")))
	assert.Equal(t, ErrorInvalid, Classify(WrapInvalid(ErrSlotMismatch, "C", "M", "a")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "Component", "Method", "action"))

	err := Wrap(ErrInvalidData, "Decoder", "Decode", "parse document")
	require.Error(t, err)
	assert.Equal(t, "Decoder.Decode: parse document failed: invalid data format", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidData))
}

func TestWrapClassified(t *testing.T) {
	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Nil(t, test.wrap(nil, "C", "M", "a"))

			err := test.wrap(ErrSlotMismatch, "View", "Build", "slot table")
			var ce *ClassifiedError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, test.class, ce.Class)
			assert.Equal(t, "View", ce.Component)
			assert.Equal(t, "Build", ce.Operation)
			assert.True(t, strings.HasPrefix(err.Error(), "View.Build: slot table failed"))
			assert.True(t, errors.Is(err, ErrSlotMismatch))
		})
	}
}

func TestClassifiedError_NoMessage(t *testing.T) {
	ce := &ClassifiedError{Class: ErrorFatal, Err: ErrDataCorrupted}
	assert.Equal(t, ErrDataCorrupted.Error(), ce.Error())
	assert.Equal(t, ErrDataCorrupted, ce.Unwrap())
}
