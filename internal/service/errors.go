package service

import "errors"

// Failure taxonomy of the auth core. Nothing here is retried internally;
// retries, if any, belong to the caller.
var (
	// ErrSessionNotFound means no token row matches the presented refresh
	// token. On refresh it maps to "session ended, please log in again".
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired means the session's refresh window is over.
	ErrSessionExpired = errors.New("session expired")

	// ErrTokenNotFound means no row matches the presented access token.
	ErrTokenNotFound = errors.New("access token not found")

	// ErrTokenExpired means the access token's own window is over.
	ErrTokenExpired = errors.New("access token expired")

	// ErrTokenRevoked means the row was explicitly revoked.
	ErrTokenRevoked = errors.New("access token revoked")

	// ErrPermissionDenied is the authorization engine's deny decision.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnknownPermission means the (resourceType, permissionCode) pair has
	// no active definition in the catalog.
	ErrUnknownPermission = errors.New("unknown permission code")

	// ErrLockTimeout means the distributed lock could not be acquired
	// within the caller's wait window.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrDuplicateRequest is the idempotency guard's rejection of a repeat
	// call inside its window.
	ErrDuplicateRequest = errors.New("duplicate request")
)
