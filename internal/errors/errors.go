package errors

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on code so wrapped errors compare equal to the sentinels below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigMissing     = &AppError{Code: "CONFIG_001", Message: "required configuration missing"}
	ErrSecretUnavailable = &AppError{Code: "CONFIG_002", Message: "secret store unavailable"}

	ErrObjectNotFound   = &AppError{Code: "STORE_001", Message: "object not found"}
	ErrStorageTransport = &AppError{Code: "STORE_002", Message: "storage transport failure"}

	ErrOcrService = &AppError{Code: "OCR_001", Message: "document recognition failed"}

	ErrLlmService       = &AppError{Code: "LLM_001", Message: "extraction service failed"}
	ErrSchemaValidation = &AppError{Code: "LLM_002", Message: "extraction result failed schema validation"}

	ErrNotifyFailed = &AppError{Code: "NOTIFY_001", Message: "downstream notification failed"}

	ErrBadRequest = &AppError{Code: "GEN_001", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_002", Message: "internal error"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
