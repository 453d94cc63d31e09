package domain

import "errors"

// Validation: malformed or missing input, always the client's fault.
var ErrMissingFields = errors.New("required fields are missing")
var ErrPasswordMismatch = errors.New("password confirmation does not match")
var ErrPasswordPolicy = errors.New("password does not meet policy requirements")
var ErrUnknownRole = errors.New("unknown role")

// Conflict: uniqueness violations, whether caught by the pre-check or by
// the store's own constraint.
var ErrDuplicateUsername = errors.New("username already exists")
var ErrDuplicateEmail = errors.New("email already exists")

// Authentication: the cause (missing account vs wrong password) is
// deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Not found.
var ErrUserNotFound = errors.New("user not found")
var ErrInvalidResetRequest = errors.New("invalid password reset request")

// State: invalid transitions. Expired, consumed, and tampered tokens all
// collapse into the same category on the external error surface.
var ErrTokenInvalid = errors.New("token is invalid or expired")
var ErrEmailAlreadyConfirmed = errors.New("email is already confirmed")

// Configuration: fatal at startup, never per-request.
var ErrSigningKeyMissing = errors.New("token signing secret is not configured")

// ErrMissingClaims means the verified token carried no usable identity claim.
var ErrMissingClaims = errors.New("missing authentication claims")
