package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCodeValidation, "category not allowed").
		WithContext("category", "web dsgn")

	msg := err.Error()
	if !strings.Contains(msg, "[VALIDATION]") {
		t.Errorf("expected code in message, got %q", msg)
	}
	if !strings.Contains(msg, "category not allowed") {
		t.Errorf("expected message text, got %q", msg)
	}
	if !strings.Contains(msg, "category: web dsgn") {
		t.Errorf("expected context, got %q", msg)
	}
}

func TestWrapNil(t *testing.T) {
	if got := Wrap(nil, ErrCodeTransport, "x"); got != nil {
		t.Errorf("Wrap(nil) = %v, want nil", got)
	}
}

func TestUnwrap(t *testing.T) {
	base := stderrors.New("connection refused")
	err := Wrap(base, ErrCodeTransport, "PATCH failed")

	if !stderrors.Is(err, base) {
		t.Error("expected errors.Is to find underlying error")
	}
}

func TestUserFacing(t *testing.T) {
	err := New(ErrCodeSlugUnresolved, "no candidate slug responded").
		WithUserMessage("The package integration is not configured yet.")
	if got := err.UserFacing(); got != "The package integration is not configured yet." {
		t.Errorf("UserFacing() = %q", got)
	}

	plain := New(ErrCodePrecondition, "no service selected")
	if got := plain.UserFacing(); got != "no service selected" {
		t.Errorf("UserFacing() fallback = %q", got)
	}
}

func TestIsCodeAndGetCode(t *testing.T) {
	err := New(ErrCodePrecondition, "no target id")
	if !IsCode(err, ErrCodePrecondition) {
		t.Error("IsCode should match")
	}
	if IsCode(err, ErrCodeTransport) {
		t.Error("IsCode should not match other codes")
	}
	if GetCode(stderrors.New("plain")) != ErrCodeInternal {
		t.Error("plain errors should map to INTERNAL")
	}
	if GetCode(nil) != "" {
		t.Error("nil error should map to empty code")
	}
}

func TestRetryable(t *testing.T) {
	err := New(ErrCodeTransport, "503").WithRetryable(true)
	if !IsRetryable(err) {
		t.Error("expected retryable")
	}
	if IsRetryable(stderrors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}
