package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidEntryType      = NewDomainError(ErrCodeValidation, "invalid entry type")
	ErrInvalidEntryStatus    = NewDomainError(ErrCodeValidation, "invalid entry status")
	ErrInvalidApprovalStatus = NewDomainError(ErrCodeValidation, "invalid approval status")
	ErrEmptyEmbeddingInput   = NewDomainError(ErrCodeValidation, "embedding input is empty")
)

// Not found errors
var (
	ErrEntryNotFound    = NewDomainError(ErrCodeNotFound, "knowledge entry not found")
	ErrVersionNotFound  = NewDomainError(ErrCodeNotFound, "entry version not found")
	ErrCategoryNotFound = NewDomainError(ErrCodeNotFound, "category not found")
)

// Authorization errors
var (
	ErrNotEntryOwner = NewDomainError(ErrCodeForbidden, "actor does not own this personal entry")
)

// Operation errors
var (
	ErrEntryArchived      = NewDomainError(ErrCodeInvalidOperation, "cannot modify an archived entry, restore it first")
	ErrEntryNotArchived   = NewDomainError(ErrCodeInvalidOperation, "entry is not archived")
	ErrVersionMismatched  = NewDomainError(ErrCodeInvalidOperation, "version does not belong to this entry")
	ErrNoSourceDocument   = NewDomainError(ErrCodeInvalidOperation, "entry is not a document entry")
	ErrDocumentStorageOff = NewDomainError(ErrCodeInvalidOperation, "document storage is not configured")
)
