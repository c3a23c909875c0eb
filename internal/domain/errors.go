// Package domain contains the core business entities for the security component.
package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the directories and the credential
// verifier matches exactly one of these with errors.Is.
var (
	// ErrBadCredentials indicates the login/secret pair was rejected.
	// It is also returned when the login does not exist and when the store
	// failed while checking credentials.
	ErrBadCredentials = errors.New("bad credentials")

	// ErrAccountDisabled indicates the account is locked.
	ErrAccountDisabled = errors.New("account is disabled")

	// ErrAlreadyRegistered indicates a duplicate login or role name on insert.
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrNotFound indicates a directory lookup miss.
	ErrNotFound = errors.New("not found")

	// ErrManagerFault indicates the account store is unreachable or an
	// operation failed for reasons unrelated to authentication.
	ErrManagerFault = errors.New("security manager fault")

	// ErrInvalidArgument indicates a malformed login, role name, password or email.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Per-entity errors, each wrapping one kind.
var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// ErrUserAlreadyExists indicates a user with the same login exists.
	ErrUserAlreadyExists = fmt.Errorf("user %w", ErrAlreadyRegistered)

	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = fmt.Errorf("role %w", ErrNotFound)

	// ErrRoleAlreadyExists indicates a role with the same name exists.
	ErrRoleAlreadyExists = fmt.Errorf("role %w", ErrAlreadyRegistered)

	// ErrInvalidLogin indicates an empty or oversized login.
	ErrInvalidLogin = fmt.Errorf("%w: login must be between 1 and 255 characters", ErrInvalidArgument)

	// ErrInvalidRoleName indicates an empty or oversized role name.
	ErrInvalidRoleName = fmt.Errorf("%w: role name must be between 1 and 255 characters", ErrInvalidArgument)

	// ErrInvalidPassword indicates an empty password on creation or change.
	ErrInvalidPassword = fmt.Errorf("%w: password must not be empty", ErrInvalidArgument)

	// ErrInvalidEmail indicates an email that does not parse as an address.
	ErrInvalidEmail = fmt.Errorf("%w: invalid email format", ErrInvalidArgument)
)

// SubjectError names the login or role an error is about.
type SubjectError struct {
	Err     error
	Detail  string
	Subject string
}

func (e *SubjectError) Error() string {
	msg := e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Subject != "" {
		msg += " (" + e.Subject + ")"
	}
	return msg
}

func (e *SubjectError) Unwrap() error {
	return e.Err
}

// WithSubject wraps err with a detail and the login or role it concerns.
func WithSubject(err error, detail, subject string) error {
	return &SubjectError{Err: err, Detail: detail, Subject: subject}
}
