// Package service provides the identity directory, the role directory and the
// credential verifier of the security component.
package service

import "github.com/koor-fr/security-component/internal/domain"

// Error kinds, re-exported so callers of this package need not import domain.
var (
	ErrBadCredentials    = domain.ErrBadCredentials
	ErrAccountDisabled   = domain.ErrAccountDisabled
	ErrAlreadyRegistered = domain.ErrAlreadyRegistered
	ErrNotFound          = domain.ErrNotFound
	ErrInvalidArgument   = domain.ErrInvalidArgument

	// ErrInternalError wraps every store or cache failure surfaced by a directory.
	ErrInternalError = domain.ErrManagerFault
)

// Specific errors.
var (
	// User errors
	ErrUserNotFound      = domain.ErrUserNotFound
	ErrUserAlreadyExists = domain.ErrUserAlreadyExists
	ErrInvalidLogin      = domain.ErrInvalidLogin
	ErrInvalidPassword   = domain.ErrInvalidPassword
	ErrInvalidEmail      = domain.ErrInvalidEmail

	// Role errors
	ErrRoleNotFound      = domain.ErrRoleNotFound
	ErrRoleAlreadyExists = domain.ErrRoleAlreadyExists
	ErrInvalidRoleName   = domain.ErrInvalidRoleName
)
