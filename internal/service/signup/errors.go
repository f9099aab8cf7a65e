package signup

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the signup service layer.
var (
	// ErrInvalidInput is matched by every *ValidationError.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateEmail means the email is already on the waitlist.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrStorageUnavailable is matched by every *StorageError.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrAlreadyExists is returned by Repository.Reserve when the email key
	// is already claimed. The service translates it to ErrDuplicateEmail.
	ErrAlreadyExists = errors.New("email key already exists")

	// ErrReservationLost is returned by Reservation.Commit when the claim
	// expired or was taken over before it could be committed.
	ErrReservationLost = errors.New("reservation no longer held")
)

// FieldError names one request field that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// StorageError wraps a failure to reach or commit to the store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }
