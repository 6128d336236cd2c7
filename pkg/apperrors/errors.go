package apperrors

import (
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrProfileNotFound        = errors.New("profile not found")
	ErrNoSession              = errors.New("no active session")
	ErrSchemaUnavailable      = errors.New("schema unavailable")
	ErrAuthenticationFailed   = errors.New("authentication failed")
	ErrWriteFailed            = errors.New("delivery write failed")
	ErrCredentialsKeyMismatch = errors.New("profile credentials were encrypted with a different key")
)

// AuthenticationFailedError is returned when every login strategy was exhausted.
// The trace holds every attempt in the order it was made.
type AuthenticationFailedError struct {
	Trace *models.LoginTrace
}

func (e *AuthenticationFailedError) Error() string {
	if e.Trace == nil {
		return ErrAuthenticationFailed.Error()
	}
	return fmt.Sprintf("%s after %d attempt(s)", ErrAuthenticationFailed.Error(), e.Trace.Len())
}

func (e *AuthenticationFailedError) Is(target error) bool {
	return target == ErrAuthenticationFailed
}

// WriteFailedError reports the line item whose insert broke the delivery
// transaction. Index is -1 when the header insert failed.
type WriteFailedError struct {
	Index int
	Err   error
}

func (e *WriteFailedError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: header: %v", ErrWriteFailed.Error(), e.Err)
	}
	return fmt.Sprintf("%s: item %d: %v", ErrWriteFailed.Error(), e.Index, e.Err)
}

func (e *WriteFailedError) Is(target error) bool {
	return target == ErrWriteFailed
}

func (e *WriteFailedError) Unwrap() error {
	return e.Err
}
