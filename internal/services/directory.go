package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"gorm.io/gorm"
)

// Directory resolves the catalog entities a role assignment refers to.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// WithTx returns a Directory bound to the given transaction.
func (d *Directory) WithTx(tx *gorm.DB) *Directory {
	return &Directory{db: tx}
}

func (d *Directory) first(ctx context.Context, dest interface{}, entity string, id uint, query string, args ...interface{}) error {
	err := d.db.WithContext(ctx).Where(query, args...).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newNotFoundError(entity, id)
	}
	if err != nil {
		return fmt.Errorf("load %s %d: %w", entity, id, err)
	}
	return nil
}

func (d *Directory) Project(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := d.first(ctx, &project, "project", id, "id = ?", id); err != nil {
		return nil, err
	}
	return &project, nil
}

func (d *Directory) Role(ctx context.Context, id uint) (*models.Role, error) {
	var role models.Role
	if err := d.first(ctx, &role, "role", id, "id = ?", id); err != nil {
		return nil, err
	}
	return &role, nil
}

func (d *Directory) Employee(ctx context.Context, id uint) (*models.Employee, error) {
	var employee models.Employee
	if err := d.first(ctx, &employee, "employee", id, "id = ?", id); err != nil {
		return nil, err
	}
	return &employee, nil
}

// EmployeeByUserID resolves the employee record of an authenticated user.
func (d *Directory) EmployeeByUserID(ctx context.Context, userID uint) (*models.Employee, error) {
	var employee models.Employee
	if err := d.first(ctx, &employee, "employee", userID, "user_id = ?", userID); err != nil {
		return nil, err
	}
	return &employee, nil
}

func (d *Directory) Incident(ctx context.Context, id uint) (*models.Incident, error) {
	var incident models.Incident
	if err := d.first(ctx, &incident, "incident", id, "id = ?", id); err != nil {
		return nil, err
	}
	return &incident, nil
}

// TeamForEmployee returns the team the employee belongs to, preferring an
// active membership. An employee without any team is a directory invariant
// violation.
func (d *Directory) TeamForEmployee(ctx context.Context, employeeID uint) (*models.Team, error) {
	var team models.Team
	err := d.db.WithContext(ctx).
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.employee_id = ?", employeeID).
		Order("team_members.active DESC").
		Order("team_members.updated_at DESC").
		First(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newInvariantError("team", employeeID, "employee is not a member of any team")
	}
	if err != nil {
		return nil, fmt.Errorf("load team for employee %d: %w", employeeID, err)
	}
	return &team, nil
}

// IsActiveTeamMember reports whether the employee is a current member of the team.
func (d *Directory) IsActiveTeamMember(ctx context.Context, teamID, employeeID uint) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ? AND employee_id = ? AND active = ?", teamID, employeeID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// OpenIncidents lists incidents of the project that are neither resolved nor closed.
func (d *Directory) OpenIncidents(ctx context.Context, projectID uint) ([]models.Incident, error) {
	var incidents []models.Incident
	err := d.db.WithContext(ctx).
		Where("project_id = ? AND status NOT IN ?", projectID, models.ClosedIncidentStatuses).
		Order("id").
		Find(&incidents).Error
	return incidents, err
}

// ProjectIDs lists all non-deleted projects.
func (d *Directory) ProjectIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := d.db.WithContext(ctx).Model(&models.Project{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}
