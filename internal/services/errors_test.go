package services

import (
	"errors"
	"fmt"
	"testing"
)

func TestRoleChainError_MessageKey(t *testing.T) {
	tests := []struct {
		err  *RoleChainError
		want string
	}{
		{newNotFoundError("employee", 3), "role_chain.not_found.employee"},
		{newValidationError("roles[0].role_id", "required"), "role_chain.validation.roles[0].role_id"},
		{newConflictError("adjacency", "stale"), "role_chain.conflict.adjacency"},
		{newInvariantError("team", 1, "no team"), "role_chain.invariant.team"},
		{newEmptyResultError("project_role", 1, "none"), "role_chain.empty.project_role"},
		{&RoleChainError{Kind: KindConflict}, "role_chain.conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.err.MessageKey(); got != tt.want {
				t.Errorf("MessageKey() = %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestRoleChainError_Error(t *testing.T) {
	if got := newNotFoundError("from", 9).Error(); got != "from not found (from 9)" {
		t.Errorf("Error() = %q", got)
	}
	if got := newConflictError("cycle", "loop").Error(); got != "loop" {
		t.Errorf("Error() = %q", got)
	}
}

func TestRoleChainError_Is(t *testing.T) {
	wrapped := fmt.Errorf("set priority: %w", newNotFoundError("to", 4))

	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped not-found should match ErrNotFound")
	}
	if !IsNotFound(wrapped, "to") {
		t.Error("should match subject to")
	}
	if IsNotFound(wrapped, "from") {
		t.Error("should not match subject from")
	}
	if errors.Is(wrapped, ErrConflict) {
		t.Error("not-found should not match ErrConflict")
	}
	if IsConflict(errors.New("plain")) {
		t.Error("plain errors are not conflicts")
	}
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{newConflictError("cycle", "loop"), "conflict"},
		{fmt.Errorf("wrap: %w", newEmptyResultError("project_role", 1, "none")), "empty"},
		{errors.New("db down"), "error"},
	}
	for _, tt := range tests {
		if got := outcomeLabel(tt.err); got != tt.want {
			t.Errorf("outcomeLabel(%v) = %q, expected %q", tt.err, got, tt.want)
		}
	}
}

func TestSentinels_MatchOnlyTheirKind(t *testing.T) {
	sentinels := []*RoleChainError{ErrValidation, ErrNotFound, ErrInvariant, ErrConflict, ErrEmpty}
	errs := []error{
		newValidationError("employee", "employee is required"),
		newNotFoundError("role", 3),
		newInvariantError("team", 4, "no team found for employee"),
		newConflictError("adjacency", "stale"),
		newEmptyResultError("project_role", 1, "none"),
	}
	for i, err := range errs {
		wrapped := fmt.Errorf("op: %w", err)
		for j, sentinel := range sentinels {
			if got := errors.Is(wrapped, sentinel); got != (i == j) {
				t.Errorf("errors.Is(%v, %s) = %v", err, sentinel.Kind, got)
			}
		}
	}
}
