package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"gorm.io/gorm"
)

// UnassignedBucket keys the records of a priority level that escalate from nobody.
const UnassignedBucket = "Unassigned"

// PriorityBucket holds the records of one priority level that share a from-employee.
type PriorityBucket struct {
	FromEmployee *models.Employee    `json:"from_employee"`
	Roles        []models.ProjectRole `json:"roles"`
}

// PriorityGrouping maps priority -> from-employee id (or UnassignedBucket) -> bucket.
type PriorityGrouping map[int]map[string]*PriorityBucket

// GetProjectRolesByPriority groups the placed records of a project by
// priority and then by the employee they escalate from.
func (s *ProjectRoleService) GetProjectRolesByPriority(ctx context.Context, projectID uint) (PriorityGrouping, error) {
	if _, err := s.directory.Project(ctx, projectID); err != nil {
		return nil, err
	}

	var records []models.ProjectRole
	err := s.db.WithContext(ctx).
		Preload("Role").
		Preload("Employee").
		Preload("Team").
		Preload("FromEmployee").
		Where("project_id = ? AND priority IS NOT NULL", projectID).
		Order("priority").
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load project roles for project %d: %w", projectID, err)
	}
	if len(records) == 0 {
		return nil, newEmptyResultError("project_role", projectID, "project has no prioritized roles")
	}

	grouping := make(PriorityGrouping)
	for _, rec := range records {
		level, ok := grouping[*rec.Priority]
		if !ok {
			level = make(map[string]*PriorityBucket)
			grouping[*rec.Priority] = level
		}
		key := UnassignedBucket
		if rec.FromEmployeeID != nil {
			key = strconv.FormatUint(uint64(*rec.FromEmployeeID), 10)
		}
		bucket, ok := level[key]
		if !ok {
			bucket = &PriorityBucket{FromEmployee: rec.FromEmployee}
			level[key] = bucket
		}
		bucket.Roles = append(bucket.Roles, rec)
	}
	return grouping, nil
}

// GetUserRoleForIncident returns the requesting user's role record in the
// project that owns the incident.
func (s *ProjectRoleService) GetUserRoleForIncident(ctx context.Context, incidentID, userID uint) (*models.ProjectRole, error) {
	employee, err := s.directory.EmployeeByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	incident, err := s.directory.Incident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	var rec models.ProjectRole
	err = preloadProjectRole(s.db.WithContext(ctx)).
		Where("project_id = ? AND employee_id = ?", incident.ProjectID, employee.ID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newNotFoundError("project_role", employee.ID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RoleMember is one employee holding a role, as seen by the requesting user.
type RoleMember struct {
	ProjectRoleID  uint             `json:"project_role_id"`
	Employee       *models.Employee `json:"employee"`
	Team           *models.Team     `json:"team,omitempty"`
	Priority       *int             `json:"priority"`
	Description    string           `json:"description"`
	ConversationID *uint            `json:"conversation_id"`
	isRequester    bool
}

// RoleGroup lists the employees holding one role in an incident's project.
type RoleGroup struct {
	Role      *models.Role `json:"role"`
	Employees []RoleMember `json:"employees"`
}

// GetRolesByIncident groups the role holders of the incident's project by
// role. The requesting user is left out of every list and each remaining
// member carries the id of the requester's direct conversation with them.
func (s *ProjectRoleService) GetRolesByIncident(ctx context.Context, incidentID, userID uint) ([]RoleGroup, error) {
	incident, err := s.directory.Incident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	var records []models.ProjectRole
	err = s.db.WithContext(ctx).
		Preload("Role").
		Preload("Employee").
		Preload("Team").
		Where("project_id = ?", incident.ProjectID).
		Order("role_id").
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load project roles for incident %d: %w", incidentID, err)
	}

	groups := make([]RoleGroup, 0)
	index := make(map[uint]int)
	for _, rec := range records {
		i, ok := index[rec.RoleID]
		if !ok {
			i = len(groups)
			index[rec.RoleID] = i
			groups = append(groups, RoleGroup{Role: rec.Role})
		}
		member := RoleMember{
			ProjectRoleID: rec.ID,
			Employee:      rec.Employee,
			Team:          rec.Team,
			Priority:      rec.Priority,
			Description:   rec.Description,
		}
		member.isRequester = rec.Employee != nil && rec.Employee.UserID == userID
		groups[i].Employees = append(groups[i].Employees, member)
	}

	var peers []uint
	for gi := range groups {
		kept := groups[gi].Employees[:0]
		for _, m := range groups[gi].Employees {
			if m.isRequester {
				continue
			}
			kept = append(kept, m)
			if m.Employee != nil {
				peers = append(peers, m.Employee.UserID)
			}
		}
		groups[gi].Employees = kept
	}

	direct, err := s.conversations.DirectConversations(ctx, userID, peers)
	if err != nil {
		return nil, err
	}

	result := make([]RoleGroup, 0, len(groups))
	for _, g := range groups {
		if len(g.Employees) == 0 {
			continue
		}
		for mi := range g.Employees {
			if g.Employees[mi].Employee == nil {
				continue
			}
			if convID, ok := direct[g.Employees[mi].Employee.UserID]; ok {
				id := convID
				g.Employees[mi].ConversationID = &id
			}
		}
		result = append(result, g)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return roleTitle(result[i].Role) < roleTitle(result[j].Role)
	})
	return result, nil
}

func roleTitle(r *models.Role) string {
	if r == nil {
		return ""
	}
	return r.Title
}
