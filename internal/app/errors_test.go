package app

import (
	"errors"
	"testing"
)

func TestOperationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *OperationError
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "op only",
			err:      &OperationError{Op: "reload"},
			expected: "reload",
		},
		{
			name:     "op and target",
			err:      &OperationError{Op: "attach", Target: "plugins/Foo.so"},
			expected: "attach plugins/Foo.so",
		},
		{
			name:     "op, target, and context",
			err:      &OperationError{Op: "attach", Target: "plugins/Foo.so", Context: "player"},
			expected: "attach plugins/Foo.so (player)",
		},
		{
			name:     "full error",
			err:      &OperationError{Op: "detach", Target: "plugins/Foo.so", Err: ErrNotAttached},
			expected: "detach plugins/Foo.so: plugin not attached to object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestOperationError_WithContext_Nil(t *testing.T) {
	var err *OperationError
	if err.WithContext("x") != nil {
		t.Error("WithContext on nil receiver should return nil")
	}
}

func TestOperationError_Unwrap(t *testing.T) {
	err := NewOperationError("attach", "Foo.so", ErrPluginUnavailable)
	if !errors.Is(err, ErrPluginUnavailable) {
		t.Error("errors.Is(err, ErrPluginUnavailable) = false")
	}

	var nilErr *OperationError
	if nilErr.Unwrap() != nil {
		t.Error("Unwrap on nil receiver should return nil")
	}
}

func TestInitError(t *testing.T) {
	inner := errors.New("bad trait")
	err := &InitError{Component: "scene", Err: inner}

	if got, want := err.Error(), "initializing scene: bad trait"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInitialization) {
		t.Error("errors.Is(err, ErrInitialization) = false")
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is(err, inner) = false")
	}
}
