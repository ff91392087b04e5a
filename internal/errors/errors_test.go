package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError(t *testing.T) {
	err := New("TEST_001", "test error")

	if err.Code != "TEST_001" {
		t.Errorf("expected code TEST_001, got %s", err.Code)
	}
	if err.Message != "test error" {
		t.Errorf("expected message 'test error', got %s", err.Message)
	}
}

func TestAppErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := New("TEST_001", "test error", cause)

	if err.Cause != cause {
		t.Errorf("expected cause to be set")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "underlying error") {
		t.Errorf("expected error string to contain cause, got %s", errStr)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := New("TEST_001", "test error", cause)

	if err.Unwrap() != cause {
		t.Errorf("expected unwrap to return cause")
	}
}

func TestIsMatchesOnCode(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("socket closed"), ErrStorageTransport.Code, "upload failed")

	if !errors.Is(wrapped, ErrStorageTransport) {
		t.Error("expected wrapped transport error to match sentinel")
	}
	if errors.Is(wrapped, ErrObjectNotFound) {
		t.Error("transport error must not match not-found sentinel")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := New("TEST_001", "test error")
	stdErr := fmt.Errorf("standard error")

	if !IsAppError(appErr) {
		t.Error("expected IsAppError to return true for AppError")
	}
	if IsAppError(stdErr) {
		t.Error("expected IsAppError to return false for standard error")
	}
	if !IsAppError(fmt.Errorf("outer: %w", appErr)) {
		t.Error("expected IsAppError to see through wrapping")
	}
}

func TestGetCode(t *testing.T) {
	appErr := New("TEST_001", "test error")
	stdErr := fmt.Errorf("standard error")

	if GetCode(appErr) != "TEST_001" {
		t.Errorf("expected code TEST_001, got %s", GetCode(appErr))
	}
	if GetCode(stdErr) != "UNKNOWN" {
		t.Errorf("expected code UNKNOWN for standard error, got %s", GetCode(stdErr))
	}
}

func TestPredefinedErrors(t *testing.T) {
	if ErrObjectNotFound.Code != "STORE_001" {
		t.Errorf("unexpected code for ErrObjectNotFound")
	}
	if ErrOcrService.Code != "OCR_001" {
		t.Errorf("unexpected code for ErrOcrService")
	}
	if ErrSchemaValidation.Code != "LLM_002" {
		t.Errorf("unexpected code for ErrSchemaValidation")
	}
	if ErrNotifyFailed.Code != "NOTIFY_001" {
		t.Errorf("unexpected code for ErrNotifyFailed")
	}
}
