package pkg

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsProtocolError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrHeaderTooShort, true},
		{ErrZeroTag, true},
		{ErrTagMismatch, true},
		{ErrInvalidMsgID, true},
		{ErrOverflow, true},
		{ErrStall, false},
		{ErrCancelled, false},
		{ErrReset, false},
		{ErrNotConfigured, false},
		{ErrBufferTooSmall, false},
		{nil, false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := IsProtocolError(tt.err); got != tt.want {
				t.Errorf("IsProtocolError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsProtocolError_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("decode header: %w", ErrTagMismatch)
	if !IsProtocolError(wrapped) {
		t.Errorf("IsProtocolError(%v) = false, want true for wrapped sentinel", wrapped)
	}
	if !errors.Is(wrapped, ErrTagMismatch) {
		t.Error("wrapped error should match sentinel via errors.Is")
	}
}

func TestSentinelsDistinct(t *testing.T) {
	sentinels := []error{
		ErrStall, ErrCancelled, ErrReset, ErrNotConfigured,
		ErrAlreadyRunning, ErrBufferTooSmall, ErrPacketTooLarge,
		ErrHeaderTooShort, ErrZeroTag, ErrTagMismatch,
		ErrInvalidMsgID, ErrOverflow,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel %v unexpectedly matches %v", a, b)
			}
		}
	}
}
