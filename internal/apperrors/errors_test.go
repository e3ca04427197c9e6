package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := New(ErrNotFound, "room not found")
	wrapped := fmt.Errorf("join room r1: %w", base)

	if !errors.Is(wrapped, ErrNotFound) {
		t.Fatalf("errors.Is(wrapped, ErrNotFound) = false")
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("errors.Is(wrapped, base) = false")
	}
	if got := Kind(wrapped); got != ErrNotFound {
		t.Fatalf("Kind() = %v, want ErrNotFound", got)
	}
	if base.Error() != "room not found" {
		t.Fatalf("Error() = %q", base.Error())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrUnavailable, cause, "load rooms")

	if !errors.Is(err, cause) || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("wrapped error lost cause or kind: %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("IsRetryable() = false for unavailable error")
	}
	if err.Error() != "load rooms: connection refused" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if Wrap(ErrUnavailable, nil, "x") != nil {
		t.Fatalf("Wrap(nil) should be nil")
	}
}

func TestKindOfPlainError(t *testing.T) {
	if Kind(errors.New("boom")) != nil {
		t.Fatalf("plain error should carry no kind")
	}
	if IsRetryable(New(ErrInvalidArgument, "bad")) {
		t.Fatalf("invalid argument must not be retryable")
	}
}
