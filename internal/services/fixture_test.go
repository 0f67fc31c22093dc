package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB opens a private in-memory sqlite database with every table migrated.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	db        *gorm.DB
	svc       *ProjectRoleService
	project   models.Project
	role      models.Role
	team      models.Team
	employees map[string]*models.Employee
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := openTestDB(t)
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		db:        db,
		svc:       NewProjectRoleService(db, NewDBChainLocker(db, 5*time.Second, 2*time.Second)),
		employees: make(map[string]*models.Employee),
	}
	f.project = models.Project{Name: "Refinery North", Status: models.ProjectStatusActive}
	f.role = models.Role{Title: "Responder"}
	f.team = models.Team{Name: "Operations"}
	f.mustCreate(&f.project)
	f.mustCreate(&f.role)
	f.mustCreate(&f.team)
	return f
}

func (f *fixture) mustCreate(v interface{}) {
	f.t.Helper()
	if err := f.db.Create(v).Error; err != nil {
		f.t.Fatalf("create %T: %v", v, err)
	}
}

// employee creates a user, its employee record and an active membership of the fixture team.
func (f *fixture) employee(name string) *models.Employee {
	f.t.Helper()
	if e, ok := f.employees[name]; ok {
		return e
	}
	user := models.User{Username: strings.ToLower(name), IsActive: true}
	f.mustCreate(&user)
	emp := models.Employee{UserID: user.ID, Name: name}
	f.mustCreate(&emp)
	f.mustCreate(&models.TeamMember{TeamID: f.team.ID, EmployeeID: emp.ID, Active: true})
	f.employees[name] = &emp
	return &emp
}

func (f *fixture) assign(names ...string) {
	f.t.Helper()
	assignments := make([]RoleAssignment, 0, len(names))
	for _, n := range names {
		assignments = append(assignments, RoleAssignment{RoleID: f.role.ID, AssignTo: f.employee(n).ID})
	}
	if _, err := f.svc.AddRolesToProject(f.ctx, f.project.ID, assignments); err != nil {
		f.t.Fatalf("assign %v: %v", names, err)
	}
}

func (f *fixture) place(name, from, to string) (*models.ProjectRole, error) {
	req := &SetRolePriorityRequest{EmployeeID: f.employee(name).ID}
	if from != "" {
		req.From = uintPtr(f.employee(from).ID)
	}
	if to != "" {
		req.To = uintPtr(f.employee(to).ID)
	}
	return f.svc.SetRolePriority(f.ctx, f.project.ID, req)
}

func (f *fixture) mustPlace(name, from, to string) *models.ProjectRole {
	f.t.Helper()
	rec, err := f.place(name, from, to)
	if err != nil {
		f.t.Fatalf("place %s (from=%q to=%q): %v", name, from, to, err)
	}
	return rec
}

// stored reloads the record of the named employee from the database.
func (f *fixture) stored(name string) models.ProjectRole {
	f.t.Helper()
	var rec models.ProjectRole
	err := f.db.Where("project_id = ? AND employee_id = ?", f.project.ID, f.employee(name).ID).First(&rec).Error
	if err != nil {
		f.t.Fatalf("load record of %s: %v", name, err)
	}
	return rec
}

func (f *fixture) assertPriority(name string, want int) {
	f.t.Helper()
	rec := f.stored(name)
	if rec.Priority == nil || *rec.Priority != want {
		f.t.Errorf("%s: priority = %v, expected %d", name, rec.Priority, want)
	}
}

func (f *fixture) assertFrom(name, from string) {
	f.t.Helper()
	rec := f.stored(name)
	if from == "" {
		if rec.FromEmployeeID != nil {
			f.t.Errorf("%s: from = %d, expected none", name, *rec.FromEmployeeID)
		}
		return
	}
	want := f.employee(from).ID
	if rec.FromEmployeeID == nil || *rec.FromEmployeeID != want {
		f.t.Errorf("%s: from = %v, expected %s (%d)", name, rec.FromEmployeeID, from, want)
	}
}

// openIncident creates an open incident with its conversation.
func (f *fixture) openIncident(title string) (models.Incident, models.Conversation) {
	f.t.Helper()
	inc := models.Incident{ProjectID: f.project.ID, Title: title, Status: models.IncidentStatusOpen}
	f.mustCreate(&inc)
	conv := models.Conversation{Type: models.ConversationTypeIncident, Name: title, IncidentID: &inc.ID, ProjectID: &f.project.ID}
	f.mustCreate(&conv)
	return inc, conv
}

func (f *fixture) participants(conversationID uint) map[uint]bool {
	f.t.Helper()
	var rows []models.ConversationParticipant
	if err := f.db.Where("conversation_id = ?", conversationID).Find(&rows).Error; err != nil {
		f.t.Fatalf("load participants: %v", err)
	}
	out := make(map[uint]bool, len(rows))
	for _, r := range rows {
		out[r.UserID] = true
	}
	return out
}
