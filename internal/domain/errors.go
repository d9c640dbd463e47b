package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource, such as an unknown view.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration signals an invalid view, source or filter declaration.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrQueryExecution signals a failure inside the search pipeline.
	ErrQueryExecution = errors.New("query execution failed")
	// ErrInvalidFilter signals a client filter token the view does not accept.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrAuthorizationDenied signals a request rejected before the pipeline ran.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrInvalidRequest signals malformed request parameters.
	ErrInvalidRequest = errors.New("invalid request")
)

// DenialReason tells why the authorization gate rejected a request.
type DenialReason int

const (
	// Unauthenticated means no identity was presented.
	Unauthenticated DenialReason = iota + 1
	// Forbidden means the identity lacks permission.
	Forbidden
)

func (r DenialReason) String() string {
	switch r {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// AuthorizationDeniedError wraps ErrAuthorizationDenied with the reason and view.
type AuthorizationDeniedError struct {
	Reason DenialReason
	View   string
}

func (e *AuthorizationDeniedError) Error() string {
	return fmt.Sprintf("%s: %s for view %q", ErrAuthorizationDenied.Error(), e.Reason, e.View)
}

func (e *AuthorizationDeniedError) Unwrap() error { return ErrAuthorizationDenied }

// NewAuthorizationDenied creates a denial error.
func NewAuthorizationDenied(reason DenialReason, view string) error {
	return &AuthorizationDeniedError{Reason: reason, View: view}
}

// ConfigurationError names the configuration element that failed validation.
type ConfigurationError struct {
	Subject string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrConfiguration.Error(), e.Subject)
	}
	return fmt.Sprintf("%s: %s: %v", ErrConfiguration.Error(), e.Subject, e.Err)
}

// Is matches ErrConfiguration as well as the wrapped cause.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError wraps err as a configuration failure for subject.
func NewConfigurationError(subject string, err error) error {
	return &ConfigurationError{Subject: subject, Err: err}
}
