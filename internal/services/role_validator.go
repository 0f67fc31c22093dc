package services

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// RoleAssignment is one (role, employee) tuple of an AddRolesToProject batch.
type RoleAssignment struct {
	RoleID          uint   `json:"role_id" validate:"required"`
	AssignTo        uint   `json:"assign_to" validate:"required"`
	RoleDescription string `json:"role_description" validate:"max=2000"`
}

// ResolvedAssignment is a validated assignment with its catalog entities loaded.
type ResolvedAssignment struct {
	Role        *models.Role
	Employee    *models.Employee
	Team        *models.Team
	Description string
}

// RoleAssignmentValidator checks role assignments against the directory.
// It never writes.
type RoleAssignmentValidator struct {
	validate *validator.Validate
}

func NewRoleAssignmentValidator() *RoleAssignmentValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RoleAssignmentValidator{validate: v}
}

// ValidateBatch checks every tuple and returns the resolved assignments in
// input order. The first failure aborts the whole batch.
func (v *RoleAssignmentValidator) ValidateBatch(ctx context.Context, tx *gorm.DB, projectID uint, assignments []RoleAssignment) ([]ResolvedAssignment, error) {
	if len(assignments) == 0 {
		return nil, newValidationError("roles", "at least one role assignment is required")
	}

	seen := make(map[uint]int, len(assignments))
	for i := range assignments {
		if err := v.checkShape(i, &assignments[i]); err != nil {
			return nil, err
		}
		if prev, dup := seen[assignments[i].AssignTo]; dup {
			return nil, newValidationError(
				fmt.Sprintf("roles[%d].assign_to", i),
				fmt.Sprintf("employee %d is already assigned at roles[%d]", assignments[i].AssignTo, prev),
			)
		}
		seen[assignments[i].AssignTo] = i
	}

	dir := NewDirectory(tx)
	resolved := make([]ResolvedAssignment, 0, len(assignments))
	for _, a := range assignments {
		r, err := v.Resolve(ctx, dir, a.RoleID, a.AssignTo)
		if err != nil {
			return nil, err
		}
		if err := ensureUnassigned(ctx, tx, projectID, a.AssignTo); err != nil {
			return nil, err
		}
		r.Description = a.RoleDescription
		resolved = append(resolved, *r)
	}
	return resolved, nil
}

// Resolve loads the role, the employee and the employee's team, and checks
// that the employee is an active member of that team.
func (v *RoleAssignmentValidator) Resolve(ctx context.Context, dir *Directory, roleID, employeeID uint) (*ResolvedAssignment, error) {
	role, err := dir.Role(ctx, roleID)
	if err != nil {
		return nil, err
	}
	resolved, err := v.ResolveEmployee(ctx, dir, employeeID)
	if err != nil {
		return nil, err
	}
	resolved.Role = role
	return resolved, nil
}

// ResolveEmployee is Resolve without the role lookup.
func (v *RoleAssignmentValidator) ResolveEmployee(ctx context.Context, dir *Directory, employeeID uint) (*ResolvedAssignment, error) {
	employee, err := dir.Employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	team, err := dir.TeamForEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	active, err := dir.IsActiveTeamMember(ctx, team.ID, employeeID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, newInvariantError("team_member", employeeID,
			fmt.Sprintf("employee is not an active member of team %d", team.ID))
	}
	return &ResolvedAssignment{Employee: employee, Team: team}, nil
}

func (v *RoleAssignmentValidator) checkShape(index int, a *RoleAssignment) error {
	err := v.validate.Struct(a)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return newValidationError(fmt.Sprintf("roles[%d]", index), err.Error())
	}
	fe := verrs[0]
	field := fmt.Sprintf("roles[%d].%s", index, fe.Field())
	switch fe.Tag() {
	case "required":
		return newValidationError(field, field+" is required")
	case "max":
		return newValidationError(field, field+" must be at most "+fe.Param()+" characters")
	default:
		return newValidationError(field, field+" is invalid")
	}
}

func ensureUnassigned(ctx context.Context, tx *gorm.DB, projectID, employeeID uint) error {
	var count int64
	err := tx.WithContext(ctx).Model(&models.ProjectRole{}).
		Where("project_id = ? AND employee_id = ?", projectID, employeeID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return newConflictError("employee_assigned",
			fmt.Sprintf("employee %d already holds a role in project %d", employeeID, projectID))
	}
	return nil
}
