package errors

import (
	"errors"
	"fmt"
)

// Domain-specific error types
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateEntry indicates a unique constraint violation
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates forbidden access
	ErrForbidden = errors.New("forbidden")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal server error")

	// ErrNoSendingAccount means the user has no active mailbox to send from
	ErrNoSendingAccount = errors.New("no sending account available")

	// ErrCredentialUnusable means a stored mailbox secret cannot be decrypted;
	// the account has to be reconnected
	ErrCredentialUnusable = errors.New("mailbox credential unusable, reconnect the account")

	// ErrInvalidTemplateVariables means a template uses placeholders outside the allow-list
	ErrInvalidTemplateVariables = errors.New("invalid template variables")

	// ErrAccountInactive means the mailbox account was disconnected
	ErrAccountInactive = errors.New("mailbox account is inactive")

	// ErrProviderUnsupported means no transport exists for the account's provider
	ErrProviderUnsupported = errors.New("provider not supported")

	// ErrNotConfigured means an optional integration has no credentials configured
	ErrNotConfigured = errors.New("integration not configured")
)

// Error codes for API responses
const (
	CodeNotFound                 = "NOT_FOUND"
	CodeDuplicateEntry           = "DUPLICATE_ENTRY"
	CodeInvalidInput             = "INVALID_INPUT"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeForbidden                = "FORBIDDEN"
	CodeInternalError            = "INTERNAL_ERROR"
	CodeNoSendingAccount         = "NO_SENDING_ACCOUNT"
	CodeCredentialUnusable       = "CREDENTIAL_UNUSABLE"
	CodeInvalidTemplateVariables = "INVALID_TEMPLATE_VARIABLES"
	CodeAccountInactive          = "ACCOUNT_INACTIVE"
	CodeProviderUnsupported      = "PROVIDER_UNSUPPORTED"
	CodeNotConfigured            = "NOT_CONFIGURED"
)

// AppError represents an application error with context
type AppError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(err error, message string, code string) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateEntry checks if the error is a duplicate entry error
func IsDuplicateEntry(err error) bool {
	return errors.Is(err, ErrDuplicateEntry)
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidTemplateVariables)
}

// IsConfiguration reports whether err is a configuration error: fatal to the
// operation, surfaced to the caller and never retried
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrNoSendingAccount) ||
		errors.Is(err, ErrCredentialUnusable) ||
		errors.Is(err, ErrInvalidTemplateVariables) ||
		errors.Is(err, ErrAccountInactive) ||
		errors.Is(err, ErrProviderUnsupported) ||
		errors.Is(err, ErrNotConfigured)
}

// GetErrorCode returns the appropriate error code for an error
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}

	switch {
	case errors.Is(err, ErrNoSendingAccount):
		return CodeNoSendingAccount
	case errors.Is(err, ErrCredentialUnusable):
		return CodeCredentialUnusable
	case errors.Is(err, ErrInvalidTemplateVariables):
		return CodeInvalidTemplateVariables
	case errors.Is(err, ErrAccountInactive):
		return CodeAccountInactive
	case errors.Is(err, ErrProviderUnsupported):
		return CodeProviderUnsupported
	case errors.Is(err, ErrNotConfigured):
		return CodeNotConfigured
	case IsNotFound(err):
		return CodeNotFound
	case IsDuplicateEntry(err):
		return CodeDuplicateEntry
	case IsInvalidInput(err):
		return CodeInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	default:
		return CodeInternalError
	}
}
