package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"gorm.io/gorm"
)

// roleChain is an in-memory view of one project's ProjectRole records,
// indexed by employee and by parent. All chain edits go through it and only
// records it marks dirty are written back.
type roleChain struct {
	projectID  uint
	byEmployee map[uint]*models.ProjectRole
	children   map[uint][]uint
	dirty      map[uint]bool
}

func loadRoleChain(ctx context.Context, tx *gorm.DB, projectID uint) (*roleChain, error) {
	var records []models.ProjectRole
	err := tx.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load role chain for project %d: %w", projectID, err)
	}
	return newRoleChain(projectID, records), nil
}

func newRoleChain(projectID uint, records []models.ProjectRole) *roleChain {
	c := &roleChain{
		projectID:  projectID,
		byEmployee: make(map[uint]*models.ProjectRole, len(records)),
		children:   make(map[uint][]uint),
		dirty:      make(map[uint]bool),
	}
	for i := range records {
		rec := &records[i]
		c.byEmployee[rec.EmployeeID] = rec
		if rec.FromEmployeeID != nil {
			c.children[*rec.FromEmployeeID] = append(c.children[*rec.FromEmployeeID], rec.EmployeeID)
		}
	}
	for parent := range c.children {
		sortIDs(c.children[parent])
	}
	return c
}

func sortIDs(ids []uint) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func (c *roleChain) record(employeeID uint) (*models.ProjectRole, bool) {
	rec, ok := c.byEmployee[employeeID]
	return rec, ok
}

// lookup returns the record of employeeID or a not-found error naming the
// request field it came from.
func (c *roleChain) lookup(employeeID uint, field string) (*models.ProjectRole, error) {
	rec, ok := c.byEmployee[employeeID]
	if !ok {
		return nil, newNotFoundError(field, employeeID)
	}
	return rec, nil
}

func (c *roleChain) add(rec *models.ProjectRole) {
	c.byEmployee[rec.EmployeeID] = rec
	if rec.FromEmployeeID != nil {
		c.attach(*rec.FromEmployeeID, rec.EmployeeID)
	}
	c.dirty[rec.EmployeeID] = true
}

func (c *roleChain) attach(parent, child uint) {
	kids := append(c.children[parent], child)
	sortIDs(kids)
	c.children[parent] = kids
}

func (c *roleChain) detach(parent, child uint) {
	kids := c.children[parent]
	for i, id := range kids {
		if id == child {
			kids = append(kids[:i], kids[i+1:]...)
			break
		}
	}
	if len(kids) == 0 {
		delete(c.children, parent)
		return
	}
	c.children[parent] = kids
}

func (c *roleChain) markDirty(employeeID uint) {
	c.dirty[employeeID] = true
}

func (c *roleChain) setParent(employeeID uint, parent *uint) {
	rec := c.byEmployee[employeeID]
	if equalIDPtr(rec.FromEmployeeID, parent) {
		return
	}
	if rec.FromEmployeeID != nil {
		c.detach(*rec.FromEmployeeID, employeeID)
	}
	rec.FromEmployeeID = copyIDPtr(parent)
	if parent != nil {
		c.attach(*parent, employeeID)
	}
	c.markDirty(employeeID)
}

func (c *roleChain) setSuccessor(employeeID uint, successor *uint) {
	rec := c.byEmployee[employeeID]
	if equalIDPtr(rec.ToEmployeeID, successor) {
		return
	}
	rec.ToEmployeeID = copyIDPtr(successor)
	c.markDirty(employeeID)
}

// setPriority reports whether the stored value changed.
func (c *roleChain) setPriority(employeeID uint, priority int) bool {
	rec := c.byEmployee[employeeID]
	if rec.Priority != nil && *rec.Priority == priority {
		return false
	}
	p := priority
	rec.Priority = &p
	c.markDirty(employeeID)
	return true
}

// isAncestor reports whether ancestor is reachable from node by walking
// from pointers upward. A node is not its own ancestor.
func (c *roleChain) isAncestor(ancestor, node uint) bool {
	visited := map[uint]bool{node: true}
	cur := node
	for {
		rec, ok := c.byEmployee[cur]
		if !ok || rec.FromEmployeeID == nil {
			return false
		}
		cur = *rec.FromEmployeeID
		if cur == ancestor {
			return true
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true
	}
}

// wouldCycle reports whether making parent the from-node of employeeID
// closes a loop.
func (c *roleChain) wouldCycle(employeeID, parent uint) bool {
	return parent == employeeID || c.isAncestor(employeeID, parent)
}

// propagate rewrites the priorities of every node downstream of employeeID
// so each child sits exactly one level below its parent. Returns the number
// of nodes visited. A zero employee id is a no-op.
func (c *roleChain) propagate(employeeID uint, priority int) (int, error) {
	if employeeID == 0 {
		return 0, nil
	}
	visited := map[uint]bool{employeeID: true}
	n, err := c.propagateFrom(employeeID, priority, visited)
	chainPropagated.Observe(float64(n))
	return n, err
}

func (c *roleChain) propagateFrom(employeeID uint, priority int, visited map[uint]bool) (int, error) {
	updated := 0
	for _, child := range c.children[employeeID] {
		if visited[child] {
			return updated, newConflictError("cycle",
				fmt.Sprintf("cycle detected at employee %d in project %d", child, c.projectID))
		}
		visited[child] = true
		if _, ok := c.byEmployee[child]; !ok {
			continue
		}
		c.setPriority(child, priority+1)
		updated++
		n, err := c.propagateFrom(child, priority+1, visited)
		updated += n
		if err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// linkRoot makes employeeID a chain root at priority 1.
func (c *roleChain) linkRoot(employeeID uint) error {
	c.setParent(employeeID, nil)
	c.setSuccessor(employeeID, nil)
	c.setPriority(employeeID, 1)
	_, err := c.propagate(employeeID, 1)
	return err
}

// linkBelow places employeeID directly under from.
func (c *roleChain) linkBelow(employeeID, from uint) error {
	fromRec, err := c.lookup(from, "from")
	if err != nil {
		return err
	}
	if !fromRec.HasPriority() {
		return newConflictError("from_unplaced",
			fmt.Sprintf("employee %d has no priority in project %d", from, c.projectID))
	}
	if c.wouldCycle(employeeID, from) {
		return newConflictError("cycle",
			fmt.Sprintf("employee %d cannot escalate from its own descendant %d", employeeID, from))
	}
	p := *fromRec.Priority + 1
	c.setParent(employeeID, &from)
	c.setSuccessor(employeeID, nil)
	c.setPriority(employeeID, p)
	_, err = c.propagate(employeeID, p)
	return err
}

// linkAbove places employeeID in the slot currently held by to. The new node
// inherits to's parent and priority and to moves one level down beneath it.
func (c *roleChain) linkAbove(employeeID, to uint) error {
	toRec, err := c.lookup(to, "to")
	if err != nil {
		return err
	}
	if !toRec.HasPriority() {
		return newConflictError("to_unplaced",
			fmt.Sprintf("employee %d has no priority in project %d", to, c.projectID))
	}
	if to == employeeID || c.isAncestor(to, employeeID) {
		return newConflictError("cycle",
			fmt.Sprintf("employee %d cannot escalate to its own ancestor %d", employeeID, to))
	}

	if toRec.FromEmployeeID != nil && *toRec.FromEmployeeID == employeeID {
		rec := c.byEmployee[employeeID]
		if !rec.HasPriority() {
			return newConflictError("employee_unplaced",
				fmt.Sprintf("employee %d has no priority in project %d", employeeID, c.projectID))
		}
		c.setSuccessor(employeeID, &to)
		_, err = c.propagate(employeeID, *rec.Priority)
		return err
	}

	parent := copyIDPtr(toRec.FromEmployeeID)
	if parent != nil && c.wouldCycle(employeeID, *parent) {
		return newConflictError("cycle",
			fmt.Sprintf("employee %d cannot escalate from its own descendant %d", employeeID, *parent))
	}
	oldPriority := *toRec.Priority

	c.setParent(employeeID, parent)
	c.setSuccessor(employeeID, &to)
	c.setPriority(employeeID, oldPriority)
	c.setParent(to, &employeeID)
	c.setPriority(to, oldPriority+1)
	_, err = c.propagate(employeeID, oldPriority)
	return err
}

// splice inserts employeeID between the adjacent nodes from and to.
func (c *roleChain) splice(employeeID, from, to uint) error {
	fromRec, err := c.lookup(from, "from")
	if err != nil {
		return err
	}
	toRec, err := c.lookup(to, "to")
	if err != nil {
		return err
	}
	if from == to {
		return newConflictError("adjacency", "from and to must be different employees")
	}
	if !fromRec.HasPriority() {
		return newConflictError("from_unplaced",
			fmt.Sprintf("employee %d has no priority in project %d", from, c.projectID))
	}
	if !toRec.HasPriority() {
		return newConflictError("to_unplaced",
			fmt.Sprintf("employee %d has no priority in project %d", to, c.projectID))
	}
	if toRec.FromEmployeeID == nil || *toRec.FromEmployeeID != from {
		return newConflictError("adjacency",
			fmt.Sprintf("employee %d does not escalate from employee %d", to, from))
	}
	if *fromRec.Priority+1 != *toRec.Priority {
		return newConflictError("depth",
			fmt.Sprintf("priority of %d is %d, expected %d", to, *toRec.Priority, *fromRec.Priority+1))
	}
	if to == employeeID || c.wouldCycle(employeeID, from) || c.isAncestor(to, employeeID) {
		return newConflictError("cycle",
			fmt.Sprintf("employee %d cannot be spliced between %d and %d", employeeID, from, to))
	}

	p := *fromRec.Priority + 1
	c.setParent(employeeID, &from)
	c.setSuccessor(employeeID, &to)
	c.setPriority(employeeID, p)
	c.setParent(to, &employeeID)
	c.setPriority(to, p+1)
	_, err = c.propagate(employeeID, p)
	return err
}

// rekey moves a record from one employee to another and repoints every
// from/to reference at the old employee.
func (c *roleChain) rekey(oldID, newID uint) {
	rec := c.byEmployee[oldID]
	delete(c.byEmployee, oldID)
	delete(c.dirty, oldID)
	rec.EmployeeID = newID
	c.byEmployee[newID] = rec
	if rec.FromEmployeeID != nil {
		c.detach(*rec.FromEmployeeID, oldID)
		c.attach(*rec.FromEmployeeID, newID)
	}

	kids := c.children[oldID]
	delete(c.children, oldID)
	for _, kid := range kids {
		if k, ok := c.byEmployee[kid]; ok {
			id := newID
			k.FromEmployeeID = &id
			c.markDirty(kid)
		}
	}
	if len(kids) > 0 {
		c.children[newID] = kids
	}
	for id, r := range c.byEmployee {
		if r.ToEmployeeID != nil && *r.ToEmployeeID == oldID {
			to := newID
			r.ToEmployeeID = &to
			c.markDirty(id)
		}
	}
	c.markDirty(newID)
}

// dirtyRecords returns the modified records ordered by employee id.
func (c *roleChain) dirtyRecords() []*models.ProjectRole {
	ids := make([]uint, 0, len(c.dirty))
	for id := range c.dirty {
		ids = append(ids, id)
	}
	sortIDs(ids)
	out := make([]*models.ProjectRole, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.byEmployee[id])
	}
	return out
}

// flush writes dirty records. New records are inserted.
func (c *roleChain) flush(ctx context.Context, tx *gorm.DB) error {
	for _, rec := range c.dirtyRecords() {
		if rec.ID == 0 {
			if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
				return fmt.Errorf("create project role for employee %d: %w", rec.EmployeeID, err)
			}
			continue
		}
		err := tx.WithContext(ctx).Model(rec).
			Select("role_id", "employee_id", "team_id", "description", "priority", "from_employee_id", "to_employee_id").
			Updates(rec).Error
		if err != nil {
			return fmt.Errorf("update project role %d: %w", rec.ID, err)
		}
	}
	c.dirty = make(map[uint]bool)
	return nil
}

func equalIDPtr(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyIDPtr(p *uint) *uint {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
