package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies role-chain failures so callers can render distinct messages.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindInvariant  ErrorKind = "invariant"
	KindConflict   ErrorKind = "conflict"
	KindEmpty      ErrorKind = "empty"
)

// RoleChainError is returned by the validator, the priority engine and the query layer.
// Subject is the entity kind for not_found/invariant/empty errors, the offending field
// for validation errors and the violated precondition for conflicts.
type RoleChainError struct {
	Kind    ErrorKind
	Subject string
	ID      uint
	Message string
}

func (e *RoleChainError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s (%s %d)", e.Message, e.Subject, e.ID)
	}
	return e.Message
}

// MessageKey is the localization key, e.g. role_chain.not_found.employee.
func (e *RoleChainError) MessageKey() string {
	if e.Subject == "" {
		return "role_chain." + string(e.Kind)
	}
	return "role_chain." + string(e.Kind) + "." + e.Subject
}

// Is matches on kind, and on subject when the target names one.
func (e *RoleChainError) Is(target error) bool {
	t, ok := target.(*RoleChainError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Subject == "" || t.Subject == e.Subject
}

// Sentinels for errors.Is checks.
var (
	ErrValidation = &RoleChainError{Kind: KindValidation}
	ErrNotFound   = &RoleChainError{Kind: KindNotFound}
	ErrInvariant  = &RoleChainError{Kind: KindInvariant}
	ErrConflict   = &RoleChainError{Kind: KindConflict}
	ErrEmpty      = &RoleChainError{Kind: KindEmpty}
)

func newValidationError(field, message string) *RoleChainError {
	return &RoleChainError{Kind: KindValidation, Subject: field, Message: message}
}

func newNotFoundError(entity string, id uint) *RoleChainError {
	return &RoleChainError{Kind: KindNotFound, Subject: entity, ID: id, Message: entity + " not found"}
}

func newInvariantError(entity string, id uint, message string) *RoleChainError {
	return &RoleChainError{Kind: KindInvariant, Subject: entity, ID: id, Message: message}
}

func newConflictError(precondition, message string) *RoleChainError {
	return &RoleChainError{Kind: KindConflict, Subject: precondition, Message: message}
}

func newEmptyResultError(entity string, id uint, message string) *RoleChainError {
	return &RoleChainError{Kind: KindEmpty, Subject: entity, ID: id, Message: message}
}

// AsRoleChainError unwraps err into a *RoleChainError.
func AsRoleChainError(err error) (*RoleChainError, bool) {
	var rcErr *RoleChainError
	if errors.As(err, &rcErr) {
		return rcErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a not-found error for the given entity.
// An empty entity matches any not-found error.
func IsNotFound(err error, entity string) bool {
	return errors.Is(err, &RoleChainError{Kind: KindNotFound, Subject: entity})
}

// IsConflict reports whether err is a priority-state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
