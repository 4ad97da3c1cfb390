package errors

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestCapacityError(t *testing.T) {
	err := CapacityError(3, 10)
	if err.Code != ErrCapacity {
		t.Errorf("expected code %s, got %s", ErrCapacity, err.Code)
	}
	if !strings.Contains(err.Error(), "axis 3") {
		t.Errorf("expected axis in message, got: %s", err.Error())
	}
	if err.Context["capacity"] != 10 {
		t.Errorf("expected capacity context 10, got %v", err.Context["capacity"])
	}
}

func TestIsUnwraps(t *testing.T) {
	inner := WatchdogTimeoutError(120001, 120000)
	outer := fmt.Errorf("minute 12:05: %w", inner)

	if !Is(outer, ErrWatchdogTimeout) {
		t.Error("expected Is to find wrapped watchdog error")
	}
	if Is(outer, ErrCapacity) {
		t.Error("did not expect capacity code")
	}
	if !IsForcedStop(outer) {
		t.Error("expected forced stop")
	}
	if Is(nil, ErrRuntime) {
		t.Error("nil error must not match")
	}
}

func TestCancelledError(t *testing.T) {
	err := CancelledError(context.Canceled)
	if !IsForcedStop(err) {
		t.Error("cancelled epoch should count as forced stop")
	}
	if err.Unwrap() != context.Canceled {
		t.Errorf("expected wrapped context.Canceled, got %v", err.Unwrap())
	}
}

func TestRecoverPanic(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"boom", "panic: boom"},
		{fmt.Errorf("bad"), "bad"},
		{42, "panic: 42"},
	}
	for _, tt := range tests {
		got := RecoverPanic(tt.in)
		if tt.in == nil {
			if got != nil {
				t.Errorf("RecoverPanic(nil) = %v, want nil", got)
			}
			continue
		}
		if got == nil || !strings.Contains(got.Error(), tt.want) {
			t.Errorf("RecoverPanic(%v) = %v, want containing %q", tt.in, got, tt.want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("epoch: %w", WatchdogTimeoutError(120001, 120000))
	if got := CodeOf(wrapped); got != ErrWatchdogTimeout {
		t.Errorf("CodeOf(wrapped) = %s", got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != ErrRuntime {
		t.Errorf("CodeOf(plain) = %s", got)
	}
}
