package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/logger"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ProjectRoleService owns the project role assignments and their escalation chain.
type ProjectRoleService struct {
	db            *gorm.DB
	directory     *Directory
	validator     *RoleAssignmentValidator
	conversations *ConversationService
	locker        ChainLocker
	autoRepair    bool
	log           zerolog.Logger
}

// NewProjectRoleService uses a database lease lock when locker is nil.
func NewProjectRoleService(db *gorm.DB, locker ChainLocker) *ProjectRoleService {
	if locker == nil {
		locker = NewDBChainLocker(db, 0, 0)
	}
	return &ProjectRoleService{
		db:            db,
		directory:     NewDirectory(db),
		validator:     NewRoleAssignmentValidator(),
		conversations: NewConversationService(db),
		locker:        locker,
		log:           logger.Component("project_role"),
	}
}

// SetAutoRepair makes background verification repair mismatches it finds.
func (s *ProjectRoleService) SetAutoRepair(enabled bool) {
	s.autoRepair = enabled
}

type UpdateProjectRoleRequest struct {
	RoleID          *uint   `json:"role_id"`
	AssignTo        *uint   `json:"assign_to"`
	RoleDescription *string `json:"role_description"`
}

// SetRolePriorityRequest places an employee in the project chain.
// From and To select the shape: neither makes a root, From alone appends
// below From, To alone inserts above To, both splice between them.
type SetRolePriorityRequest struct {
	EmployeeID uint  `json:"employee"`
	RoleID     *uint `json:"role"`
	From       *uint `json:"from"`
	To         *uint `json:"to"`
}

func idOrZero(p *uint) uint {
	if p == nil {
		return 0
	}
	return *p
}

func preloadProjectRole(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Role").
		Preload("Employee").
		Preload("Team").
		Preload("FromEmployee").
		Preload("ToEmployee")
}

// withChainLock runs fn in a transaction while holding the project's chain lock.
// The transaction rolls back if the lock lease ran out before commit.
func (s *ProjectRoleService) withChainLock(ctx context.Context, projectID uint, fn func(tx *gorm.DB) error) error {
	release, err := s.locker.Lock(ctx, projectID)
	if err != nil {
		return err
	}
	defer release()
	acquired := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		if held := time.Since(acquired); held >= s.locker.TTL() {
			return leaseExpiredError(projectID, held, s.locker.TTL())
		}
		return nil
	})
}

// AddRolesToProject validates and inserts a batch of assignments, then adds
// every new employee to the conversation of each open incident of the
// project. Any failure rolls back the whole batch.
func (s *ProjectRoleService) AddRolesToProject(ctx context.Context, projectID uint, assignments []RoleAssignment) ([]models.ProjectRole, error) {
	var created []models.ProjectRole
	var fannedOut int64

	err := s.withChainLock(ctx, projectID, func(tx *gorm.DB) error {
		dir := s.directory.WithTx(tx)
		if _, err := dir.Project(ctx, projectID); err != nil {
			return err
		}

		resolved, err := s.validator.ValidateBatch(ctx, tx, projectID, assignments)
		if err != nil {
			return err
		}

		records := make([]models.ProjectRole, 0, len(resolved))
		userIDs := make([]uint, 0, len(resolved))
		for _, r := range resolved {
			records = append(records, models.ProjectRole{
				ProjectID:   projectID,
				RoleID:      r.Role.ID,
				EmployeeID:  r.Employee.ID,
				TeamID:      r.Team.ID,
				Description: r.Description,
			})
			userIDs = append(userIDs, r.Employee.UserID)
		}
		if err := tx.WithContext(ctx).Create(&records).Error; err != nil {
			return fmt.Errorf("insert project roles: %w", err)
		}

		fannedOut, err = s.conversations.WithTx(tx).FanOutToOpenIncidents(ctx, dir, projectID, userIDs)
		if err != nil {
			return err
		}

		ids := make([]uint, 0, len(records))
		for _, rec := range records {
			ids = append(ids, rec.ID)
		}
		return preloadProjectRole(tx.WithContext(ctx)).Where("id IN ?", ids).Order("id").Find(&created).Error
	})
	observeChainOperation("add_roles", err)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("project_id", projectID).
		Int("roles", len(created)).
		Int64("participants_added", fannedOut).
		Msg("roles added to project")
	PublishChainEvent(projectID, ChainActionRolesAdded, 0, nil, len(created))
	LogChainChange(models.LogLevelInfo, projectID, ChainActionRolesAdded,
		fmt.Sprintf("%d roles added", len(created)),
		map[string]interface{}{"roles": len(created), "participants_added": fannedOut})
	return created, nil
}

// UpdateProjectRole changes the role, the assignee or the description of one
// record. Reassigning re-derives the team, repoints chain references from the
// old employee and adds the new employee to open incident conversations.
func (s *ProjectRoleService) UpdateProjectRole(ctx context.Context, projectID, recordID uint, req *UpdateProjectRoleRequest) (*models.ProjectRole, error) {
	if req.RoleID == nil && req.AssignTo == nil && req.RoleDescription == nil {
		return nil, newValidationError("body", "nothing to update")
	}
	if req.RoleID != nil && *req.RoleID == 0 {
		return nil, newValidationError("role_id", "role_id must be positive")
	}
	if req.AssignTo != nil && *req.AssignTo == 0 {
		return nil, newValidationError("assign_to", "assign_to must be positive")
	}

	var result models.ProjectRole
	err := s.withChainLock(ctx, projectID, func(tx *gorm.DB) error {
		dir := s.directory.WithTx(tx)
		if _, err := dir.Project(ctx, projectID); err != nil {
			return err
		}

		var stored models.ProjectRole
		err := tx.WithContext(ctx).Where("id = ? AND project_id = ?", recordID, projectID).First(&stored).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newNotFoundError("project_role", recordID)
		}
		if err != nil {
			return err
		}

		chain, err := loadRoleChain(ctx, tx, projectID)
		if err != nil {
			return err
		}
		rec, _ := chain.record(stored.EmployeeID)

		if req.RoleID != nil && *req.RoleID != rec.RoleID {
			role, err := dir.Role(ctx, *req.RoleID)
			if err != nil {
				return err
			}
			rec.RoleID = role.ID
			chain.markDirty(rec.EmployeeID)
		}

		var newUserID uint
		if req.AssignTo != nil && *req.AssignTo != rec.EmployeeID {
			if _, taken := chain.record(*req.AssignTo); taken {
				return newConflictError("employee_assigned",
					fmt.Sprintf("employee %d already holds a role in project %d", *req.AssignTo, projectID))
			}
			resolved, err := s.validator.ResolveEmployee(ctx, dir, *req.AssignTo)
			if err != nil {
				return err
			}
			chain.rekey(rec.EmployeeID, resolved.Employee.ID)
			rec.TeamID = resolved.Team.ID
			newUserID = resolved.Employee.UserID
		}

		if req.RoleDescription != nil && *req.RoleDescription != rec.Description {
			rec.Description = *req.RoleDescription
			chain.markDirty(rec.EmployeeID)
		}

		if err := chain.flush(ctx, tx); err != nil {
			return err
		}
		if newUserID != 0 {
			if _, err := s.conversations.WithTx(tx).FanOutToOpenIncidents(ctx, dir, projectID, []uint{newUserID}); err != nil {
				return err
			}
		}
		return preloadProjectRole(tx.WithContext(ctx)).First(&result, rec.ID).Error
	})
	observeChainOperation("update_role", err)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("project_id", projectID).
		Uint("project_role_id", recordID).
		Uint("employee_id", result.EmployeeID).
		Msg("project role updated")
	PublishChainEvent(projectID, ChainActionRoleUpdated, result.EmployeeID, result.Priority, 1)
	LogChainChange(models.LogLevelInfo, projectID, ChainActionRoleUpdated,
		fmt.Sprintf("project role %d updated", recordID), req)
	return &result, nil
}

// SetRolePriority places req.EmployeeID in the project chain and rewrites the
// priorities of every node below it. The employee's record is created when
// missing, which requires req.RoleID.
func (s *ProjectRoleService) SetRolePriority(ctx context.Context, projectID uint, req *SetRolePriorityRequest) (*models.ProjectRole, error) {
	if req.EmployeeID == 0 {
		return nil, newValidationError("employee", "employee is required")
	}
	from, to := idOrZero(req.From), idOrZero(req.To)

	var result models.ProjectRole
	var updated int
	err := s.withChainLock(ctx, projectID, func(tx *gorm.DB) error {
		dir := s.directory.WithTx(tx)
		if _, err := dir.Project(ctx, projectID); err != nil {
			return err
		}

		chain, err := loadRoleChain(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if from != 0 {
			if _, err := chain.lookup(from, "from"); err != nil {
				return err
			}
		}
		if to != 0 {
			if _, err := chain.lookup(to, "to"); err != nil {
				return err
			}
		}

		rec, created, err := s.ensureRecord(ctx, dir, chain, projectID, req)
		if err != nil {
			return err
		}

		switch {
		case from == 0 && to == 0:
			err = chain.linkRoot(req.EmployeeID)
		case to == 0:
			err = chain.linkBelow(req.EmployeeID, from)
		case from == 0:
			err = chain.linkAbove(req.EmployeeID, to)
		default:
			err = chain.splice(req.EmployeeID, from, to)
		}
		if err != nil {
			return err
		}

		if !created && req.RoleID != nil && *req.RoleID != 0 && *req.RoleID != rec.RoleID {
			role, err := dir.Role(ctx, *req.RoleID)
			if err != nil {
				return err
			}
			rec.RoleID = role.ID
			chain.markDirty(rec.EmployeeID)
		}

		updated = len(chain.dirty)
		if err := chain.flush(ctx, tx); err != nil {
			return err
		}

		if created {
			employee, err := dir.Employee(ctx, req.EmployeeID)
			if err != nil {
				return err
			}
			if _, err := s.conversations.WithTx(tx).FanOutToOpenIncidents(ctx, dir, projectID, []uint{employee.UserID}); err != nil {
				return err
			}
		}
		return preloadProjectRole(tx.WithContext(ctx)).First(&result, rec.ID).Error
	})
	observeChainOperation("set_priority", err)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("project_id", projectID).
		Uint("employee_id", req.EmployeeID).
		Uint("from", from).
		Uint("to", to).
		Int("priority", result.PriorityValue()).
		Int("records_written", updated).
		Msg("role priority set")
	PublishChainEvent(projectID, ChainActionPrioritySet, req.EmployeeID, result.Priority, updated)
	LogChainChange(models.LogLevelInfo, projectID, ChainActionPrioritySet,
		fmt.Sprintf("employee %d placed at priority %d", req.EmployeeID, result.PriorityValue()), req)
	s.enqueueVerify(projectID, ChainActionPrioritySet)
	return &result, nil
}

// ensureRecord returns the employee's record in the chain, creating it when
// the employee holds no role in the project yet.
func (s *ProjectRoleService) ensureRecord(ctx context.Context, dir *Directory, chain *roleChain, projectID uint, req *SetRolePriorityRequest) (*models.ProjectRole, bool, error) {
	if rec, ok := chain.record(req.EmployeeID); ok {
		return rec, false, nil
	}
	if req.RoleID == nil || *req.RoleID == 0 {
		return nil, false, newValidationError("role", "role is required when the employee holds no role in the project")
	}
	resolved, err := s.validator.Resolve(ctx, dir, *req.RoleID, req.EmployeeID)
	if err != nil {
		return nil, false, err
	}
	rec := &models.ProjectRole{
		ProjectID:  projectID,
		RoleID:     resolved.Role.ID,
		EmployeeID: resolved.Employee.ID,
		TeamID:     resolved.Team.ID,
	}
	chain.add(rec)
	return rec, true, nil
}

func (s *ProjectRoleService) enqueueVerify(projectID uint, reason string) {
	q := GetTaskQueue()
	if q == nil {
		return
	}
	task := &ChainTask{ProjectID: projectID, Reason: reason, Repair: s.autoRepair, RequestedAt: time.Now()}
	if err := q.Enqueue(task); err != nil {
		s.log.Warn().Err(err).Uint("project_id", projectID).Msg("failed to enqueue chain verification")
	}
}
