package domain

import "errors"

// Error taxonomy shared by every layer. Callers wrap these with fmt.Errorf("%w: ...")
// and classify with errors.Is.
var (
	// ErrUnauthenticated covers a missing, malformed, forged or expired credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrValidation rejects input before any persistence attempt.
	ErrValidation = errors.New("validation failed")
	// ErrStorage reports that the durability layer failed or timed out.
	// No partial write happened, so the caller may retry.
	ErrStorage = errors.New("storage unavailable")
	// ErrDelivery reports a failed push to one live channel. It never reaches the sender.
	ErrDelivery = errors.New("delivery failed")
	// ErrInvalidCredentials is returned for any failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrConflict is returned when a unique user attribute is already taken.
	ErrConflict = errors.New("already exists")
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("not found")
)
