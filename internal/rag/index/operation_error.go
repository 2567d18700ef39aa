package index

import "fmt"

type OperationErrorCode string

const (
	OperationErrorValidation        OperationErrorCode = "validation_failed"
	OperationErrorDimensionMismatch OperationErrorCode = "dimension_mismatch"
	OperationErrorEncodeFailed      OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed      OperationErrorCode = "decode_failed"
	OperationErrorPersistFailed     OperationErrorCode = "persist_failed"
)

type OperationError struct {
	Code      OperationErrorCode
	Operation string
	Message   string
	Cause     error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "vector index operation failed"
	}
	if e.Message != "" {
		return fmt.Sprintf("vector index operation failed (op=%s code=%s): %s", e.Operation, e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("vector index operation failed (op=%s code=%s): %v", e.Operation, e.Code, e.Cause)
	}
	return fmt.Sprintf("vector index operation failed (op=%s code=%s)", e.Operation, e.Code)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{
		Code:      code,
		Operation: op,
		Message:   msg,
		Cause:     cause,
	}
}
