package data

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the stores, the chat service and the HTTP boundary.
// Callers wrap these with fmt.Errorf("...: %w", Err...) and classify with errors.Is.
var (
	// ErrValidation marks missing or malformed input, detected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a referenced chat, message or user that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExpired marks a delete-for-everyone request outside its window.
	ErrExpired = errors.New("expired")
	// ErrForbidden marks a requester who is not a participant of the target chat.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks a unique-key collision, e.g. signing up twice.
	ErrConflict = errors.New("already exists")
	// ErrUpstream marks a failure of the durable store or blob collaborator.
	ErrUpstream = errors.New("upstream failure")
)

// upstream wraps a driver error so callers can classify it as ErrUpstream
// while keeping the original error in the chain.
func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}

// Validation returns an ErrValidation carrying msg.
func Validation(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrValidation)
}
