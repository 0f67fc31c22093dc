package services

import (
	"context"
	"fmt"
	"time"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"gorm.io/gorm"
)

const (
	MismatchPriority      = "priority"
	MismatchMissingParent = "missing_parent"
	MismatchUnreachable   = "unreachable"
)

// PriorityMismatch is one record whose stored priority disagrees with the
// priority derived from its from pointers.
type PriorityMismatch struct {
	ProjectRoleID uint   `json:"project_role_id"`
	EmployeeID    uint   `json:"employee_id"`
	Stored        *int   `json:"stored"`
	Expected      *int   `json:"expected"`
	Reason        string `json:"reason"`
}

type IntegrityReport struct {
	ProjectID  uint               `json:"project_id"`
	Checked    int                `json:"checked"`
	Healthy    bool               `json:"healthy"`
	Mismatches []PriorityMismatch `json:"mismatches"`
	Repaired   int                `json:"repaired"`
	CheckedAt  time.Time          `json:"checked_at"`
}

// expectedPriorities derives each record's priority from the structure:
// roots sit at 1 and every child one below its parent. Records that are
// neither placed nor referenced expect no priority.
func (c *roleChain) expectedPriorities() (map[uint]int, []PriorityMismatch) {
	expected := make(map[uint]int, len(c.byEmployee))
	var broken []PriorityMismatch

	var roots []uint
	for _, id := range c.employeeIDs() {
		rec := c.byEmployee[id]
		if rec.FromEmployeeID != nil {
			if _, ok := c.byEmployee[*rec.FromEmployeeID]; !ok {
				broken = append(broken, PriorityMismatch{
					ProjectRoleID: rec.ID, EmployeeID: id, Stored: rec.Priority, Reason: MismatchMissingParent,
				})
			}
			continue
		}
		if rec.HasPriority() || len(c.children[id]) > 0 {
			roots = append(roots, id)
		}
	}

	queue := make([]uint, 0, len(c.byEmployee))
	for _, id := range roots {
		expected[id] = 1
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range c.children[id] {
			if _, seen := expected[child]; seen {
				continue
			}
			if _, ok := c.byEmployee[child]; !ok {
				continue
			}
			expected[child] = expected[id] + 1
			queue = append(queue, child)
		}
	}

	for _, id := range c.employeeIDs() {
		rec := c.byEmployee[id]
		if rec.FromEmployeeID == nil {
			continue
		}
		if _, ok := c.byEmployee[*rec.FromEmployeeID]; !ok {
			continue
		}
		if _, reached := expected[id]; !reached {
			broken = append(broken, PriorityMismatch{
				ProjectRoleID: rec.ID, EmployeeID: id, Stored: rec.Priority, Reason: MismatchUnreachable,
			})
		}
	}
	return expected, broken
}

// verify compares stored priorities with the derived ones.
func (c *roleChain) verify() *IntegrityReport {
	expected, mismatches := c.expectedPriorities()
	for _, id := range c.employeeIDs() {
		rec := c.byEmployee[id]
		want, placed := expected[id]
		if placed && (rec.Priority == nil || *rec.Priority != want) {
			w := want
			mismatches = append(mismatches, PriorityMismatch{
				ProjectRoleID: rec.ID, EmployeeID: id, Stored: rec.Priority, Expected: &w, Reason: MismatchPriority,
			})
		}
	}
	return &IntegrityReport{
		ProjectID:  c.projectID,
		Checked:    len(c.byEmployee),
		Healthy:    len(mismatches) == 0,
		Mismatches: mismatches,
		CheckedAt:  time.Now(),
	}
}

func (c *roleChain) employeeIDs() []uint {
	ids := make([]uint, 0, len(c.byEmployee))
	for id := range c.byEmployee {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// VerifyChain recomputes every priority of the project from its from
// pointers and reports the records that disagree. It never writes.
func (s *ProjectRoleService) VerifyChain(ctx context.Context, projectID uint) (*IntegrityReport, error) {
	if _, err := s.directory.Project(ctx, projectID); err != nil {
		return nil, err
	}
	chain, err := loadRoleChain(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	report := chain.verify()
	chainMismatches.Add(float64(len(report.Mismatches)))
	observeChainOperation("verify", nil)
	return report, nil
}

// RepairChain rewrites stored priorities that disagree with the structure.
// Records with a missing parent or outside every tree are reported, not changed.
func (s *ProjectRoleService) RepairChain(ctx context.Context, projectID uint) (*IntegrityReport, error) {
	var report *IntegrityReport
	err := s.withChainLock(ctx, projectID, func(tx *gorm.DB) error {
		if _, err := s.directory.WithTx(tx).Project(ctx, projectID); err != nil {
			return err
		}
		chain, err := loadRoleChain(ctx, tx, projectID)
		if err != nil {
			return err
		}
		report = chain.verify()
		for _, m := range report.Mismatches {
			if m.Reason != MismatchPriority || m.Expected == nil {
				continue
			}
			chain.setPriority(m.EmployeeID, *m.Expected)
			report.Repaired++
		}
		return chain.flush(ctx, tx)
	})
	observeChainOperation("repair", err)
	if err != nil {
		return nil, err
	}

	if report.Repaired > 0 {
		s.log.Warn().
			Uint("project_id", projectID).
			Int("repaired", report.Repaired).
			Int("mismatches", len(report.Mismatches)).
			Msg("role chain repaired")
		PublishChainEvent(projectID, ChainActionRepaired, 0, nil, report.Repaired)
		LogChainChange(models.LogLevelWarning, projectID, ChainActionRepaired,
			fmt.Sprintf("%d priorities repaired", report.Repaired), report.Mismatches)
	}
	return report, nil
}

// ProcessChainTask is the queue processor for TaskTypeChainVerify.
func (s *ProjectRoleService) ProcessChainTask(ctx context.Context, task *ChainTask) error {
	report, err := s.VerifyChain(ctx, task.ProjectID)
	if err != nil {
		if IsNotFound(err, "project") {
			chainTasks.WithLabelValues(task.Reason, "skipped").Inc()
			return nil
		}
		chainTasks.WithLabelValues(task.Reason, "error").Inc()
		return err
	}
	if report.Healthy {
		chainTasks.WithLabelValues(task.Reason, "healthy").Inc()
		return nil
	}

	s.log.Warn().
		Uint("project_id", task.ProjectID).
		Str("reason", task.Reason).
		Int("mismatches", len(report.Mismatches)).
		Msg("role chain integrity check failed")
	if !task.Repair && !s.autoRepair {
		chainTasks.WithLabelValues(task.Reason, "unhealthy").Inc()
		LogChainChange(models.LogLevelWarning, task.ProjectID, "verify_failed",
			fmt.Sprintf("%d priority mismatches", len(report.Mismatches)), report.Mismatches)
		return nil
	}
	if _, err := s.RepairChain(ctx, task.ProjectID); err != nil {
		chainTasks.WithLabelValues(task.Reason, "error").Inc()
		return err
	}
	chainTasks.WithLabelValues(task.Reason, "repaired").Inc()
	return nil
}
