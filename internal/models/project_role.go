package models

import (
	"time"
)

// ProjectRole binds one employee to one role within a project and records the
// employee's position in the project's escalation chain.
//
// FromEmployeeID points at the employee this role escalates from (the parent in
// the chain). ToEmployeeID is the employee directly below when the record was
// spliced between two nodes. Priority is the depth in the chain (root = 1) and
// is nil while the employee has not been placed in any chain.
type ProjectRole struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ProjectID      uint      `gorm:"uniqueIndex:idx_project_employee;not null" json:"project_id"`
	Project        *Project  `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	RoleID         uint      `gorm:"index;not null" json:"role_id"`
	Role           *Role     `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	EmployeeID     uint      `gorm:"uniqueIndex:idx_project_employee;not null" json:"employee_id"`
	Employee       *Employee `gorm:"foreignKey:EmployeeID" json:"employee,omitempty"`
	TeamID         uint      `gorm:"index;not null" json:"team_id"`
	Team           *Team     `gorm:"foreignKey:TeamID" json:"team,omitempty"`
	Description    string    `gorm:"type:text" json:"description"`
	Priority       *int      `gorm:"index" json:"priority"`
	FromEmployeeID *uint     `gorm:"index" json:"from_employee_id"`
	FromEmployee   *Employee `gorm:"foreignKey:FromEmployeeID" json:"from_employee,omitempty"`
	ToEmployeeID   *uint     `json:"to_employee_id"`
	ToEmployee     *Employee `gorm:"foreignKey:ToEmployeeID" json:"to_employee,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (ProjectRole) TableName() string { return "project_roles" }

// HasPriority reports whether the record is placed in a chain.
func (r *ProjectRole) HasPriority() bool {
	return r.Priority != nil
}

// PriorityValue returns the priority or 0 when unassigned.
func (r *ProjectRole) PriorityValue() int {
	if r.Priority == nil {
		return 0
	}
	return *r.Priority
}
