package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeRuleNotFound ErrorType = "rule_not_found"
	ErrorTypeRuleParse    ErrorType = "rule_parse"
	ErrorTypeCollaborator ErrorType = "collaborator"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Not Found Errors
	ErrRuleNotFound     = NewDomainError(ErrorTypeRuleNotFound, "rule source not found", nil)
	ErrRegistryNotFound = NewDomainError(ErrorTypeNotFound, "unit registry not found", nil)
	ErrLogNotFound      = NewDomainError(ErrorTypeNotFound, "log file not found", nil)
	ErrStateNotFound    = NewDomainError(ErrorTypeNotFound, "state file not found", nil)

	// Validation Errors
	ErrInvalidInput      = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidRuleSource = NewDomainError(ErrorTypeValidation, "invalid rule source", nil)
	ErrInvalidUnit       = NewDomainError(ErrorTypeValidation, "invalid unit name", nil)
	ErrInvalidArea       = NewDomainError(ErrorTypeValidation, "invalid state area", nil)

	// Rule Errors
	ErrRuleParse = NewDomainError(ErrorTypeRuleParse, "rule source is not valid", nil)

	// Collaborator Errors
	ErrCollaboratorFailure = NewDomainError(ErrorTypeCollaborator, "collaborator failure", nil)

	// Internal Errors
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// NewRuleNotFound reports a rule source that does not exist
func NewRuleNotFound(source string) *DomainError {
	return NewDomainError(ErrorTypeRuleNotFound, fmt.Sprintf("rule source not found: %s", source), nil).
		WithDetail("source", source)
}

// NewRuleParseError reports a rule source that exists but cannot be parsed
func NewRuleParseError(source string, err error) *DomainError {
	return NewDomainError(ErrorTypeRuleParse, fmt.Sprintf("invalid rule source %s", source), err).
		WithDetail("source", source)
}

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsRuleNotFoundError checks if an error is a missing rule source
func IsRuleNotFoundError(err error) bool {
	return hasType(err, ErrorTypeRuleNotFound)
}

// IsRuleParseError checks if an error is an unparsable rule source
func IsRuleParseError(err error) bool {
	return hasType(err, ErrorTypeRuleParse)
}

// IsCollaboratorError checks if an error came from a collaborator backend
func IsCollaboratorError(err error) bool {
	return hasType(err, ErrorTypeCollaborator)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapCollaborator wraps a failure of the named collaborator backend
func WrapCollaborator(collaborator string, err error) error {
	return NewDomainError(ErrorTypeCollaborator, fmt.Sprintf("%s unavailable", collaborator), err).
		WithDetail("collaborator", collaborator)
}
