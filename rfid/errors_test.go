package rfid

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Message(t *testing.T) {
	err := NewAuthError("Read", "deadbeef", errSimulated)
	msg := err.Error()
	for _, want := range []string{"Read", "deadbeef", "block authentication failed", errSimulated.Error()} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	err := NewTransportError("DetectTag", errSimulated)
	if !errors.Is(err, errSimulated) {
		t.Errorf("cause not reachable through %v", err)
	}
	wrapped := fmt.Errorf("poll: %w", err)
	if !IsTransportError(wrapped) {
		t.Errorf("code not reachable through %v", wrapped)
	}
}

func TestError_CodeMatching(t *testing.T) {
	cases := []struct {
		err  error
		code ErrorCode
	}{
		{NewTransportError("op", nil), ErrCodeTransport},
		{NewAuthError("op", "", nil), ErrCodeAuthFailed},
		{NewReadError("op", "", nil), ErrCodeReadFailed},
		{NewWriteError("op", "", nil), ErrCodeWriteFailed},
		{NewCapacityError("op"), ErrCodeCapacityExceeded},
		{NewDecodeError("op", "bad framing", nil), ErrCodeDecodeFailed},
	}
	for _, tc := range cases {
		if got := GetErrorCode(tc.err); got != tc.code {
			t.Errorf("GetErrorCode(%v) = %d, want %d", tc.err, got, tc.code)
		}
	}
	if GetErrorCode(errSimulated) != 0 {
		t.Error("plain errors must report code zero")
	}
	if IsAuthError(nil) {
		t.Error("nil is never an auth error")
	}
}

func TestError_IsComparesCodesOnly(t *testing.T) {
	a := NewCapacityError("Write")
	b := NewCapacityError("Flush")
	if !errors.Is(a, b) {
		t.Error("errors of the same code must match")
	}
	if errors.Is(a, NewTransportError("op", nil)) {
		t.Error("errors of different codes must not match")
	}
}
