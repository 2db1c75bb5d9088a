package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountSuspended indicates the account is administratively suspended.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrUnauthorized indicates the request carries no authenticated identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPermissionDenied indicates the effective permission set lacks a required code.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRoleProtected indicates an attempt to delete the reserved Admin role.
	ErrRoleProtected = errors.New("role is protected")
	// ErrMutationFailure indicates an atomic permission replacement did not commit.
	// The prior set is intact and the operation may be retried.
	ErrMutationFailure = errors.New("mutation failed")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// SuspensionMessage is the fixed user-facing text shown when a session is
// terminated because the account was suspended. Clients that need to branch
// on suspension match this text; no machine-readable code is emitted for it.
const SuspensionMessage = "Your account has been suspended. Contact an administrator to restore access."
