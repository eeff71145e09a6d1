package errors

import (
	"errors"
	"fmt"
	"testing"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Domain Error Tests
// -----------------------------------------------------------------------------

func TestModeError_Format(t *testing.T) {
	err := NewModeError("spec finalize returned short slice", nil).
		WithMode("elected").
		WithInstance("inst-1")

	want := "mode error [mode=elected, instance=inst-1]: spec finalize returned short slice"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestModeError_WrapsSentinel(t *testing.T) {
	err := NewModeError("gating failed", ErrInsufficientInstances).WithMode("tournament")

	if !Is(err, ErrInsufficientInstances) {
		t.Error("expected errors.Is to match wrapped sentinel")
	}

	var modeErr *ModeError
	if !As(err, &modeErr) {
		t.Fatal("expected errors.As to find ModeError")
	}
	if modeErr.Mode != "tournament" {
		t.Errorf("Mode = %q, want tournament", modeErr.Mode)
	}
}

func TestTransportError_StatusCodeRetryability(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		retryable bool
	}{
		{"server error is retryable", 500, true},
		{"rate limit is retryable", 429, true},
		{"bad request is not retryable", 400, false},
		{"not found is not retryable", 404, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTransportError("request failed", nil).WithStatusCode(tt.code)
			if got := IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestConfigError_FieldPath(t *testing.T) {
	err := NewConfigError("threshold must be in (0, 1]", nil).
		WithField("modes.consensus.threshold")

	want := "config error [field=modes.consensus.threshold]: threshold must be in (0, 1]"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !IsUserFacing(err) {
		t.Error("config errors should be user facing")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestClassification_UnwrapsChain(t *testing.T) {
	inner := NewTransportError("upstream hiccup", nil)
	wrapped := fmt.Errorf("running judge call: %w", inner)

	if !IsRetryable(wrapped) {
		t.Error("expected retryable classification through wrap chain")
	}
	if SeverityOf(wrapped) != SeverityWarning {
		t.Errorf("SeverityOf = %v, want SeverityWarning", SeverityOf(wrapped))
	}
}

func TestClassification_PlainErrors(t *testing.T) {
	plain := errors.New("plain")
	if IsRetryable(plain) {
		t.Error("plain errors should not be retryable")
	}
	if IsUserFacing(plain) {
		t.Error("plain errors should not be user facing")
	}
	if SeverityOf(plain) != SeverityError {
		t.Errorf("SeverityOf(plain) = %v, want SeverityError", SeverityOf(plain))
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}
