package cercle

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	// Missing references.
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrGroupNotFound   = errors.New("session group not found")
	ErrItemNotFound    = errors.New("catalog item not found")
	ErrEntryNotFound   = errors.New("ledger entry not found")

	// Invalid arguments.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrInvalidAmount   = errors.New("amount must be non-zero for a billable entry")
	ErrMissingItem     = errors.New("item required for drink and snack entries")
	ErrInvalidKind     = errors.New("invalid entry kind")
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidStatus   = errors.New("invalid cotisation status")
	ErrInvalidLogin    = errors.New("invalid login")
	ErrInvalidItemName = errors.New("invalid item name")
	ErrInvalidMetadata = errors.New("invalid metadata json")

	// Conflicts.
	ErrSessionAlreadyOpen = errors.New("another session is already open")
	ErrItemInUse          = errors.New("catalog item referenced by ledger entries")
	ErrDuplicateLogin     = errors.New("login already taken")

	// Access control denials.
	ErrNotAuthorized = errors.New("not authorized")
	ErrNotStaffed    = errors.New("user is not staffed on this session")
	ErrSessionClosed = errors.New("session is not open")

	// Retryable write contention surfaced by the store.
	ErrContention = errors.New("write contention, retry")

	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
