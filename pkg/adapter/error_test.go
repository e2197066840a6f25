package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"rate limited", &AdapterError{Status: 429}, true},
		{"server error", &AdapterError{Status: 503}, true},
		{"bad request", &AdapterError{Status: 400}, false},
		{"temporary flag", &AdapterError{Temporary: true}, true},
		{"plain error", errors.New("boom"), false},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestAdapterErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := wrapErr("test", inner)
	if !errors.Is(err, inner) {
		t.Error("wrapped error should unwrap to inner")
	}
}
