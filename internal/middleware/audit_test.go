package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"github.com/creator-cell/emergex-portals-api-sub000/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestRouteAction(t *testing.T) {
	tests := []struct {
		path   string
		method string
		want   string
	}{
		{"/api/projects/:id/roles", "POST", "add_roles"},
		{"/api/projects/:id/roles/:roleId", "PUT", "update_role"},
		{"/api/projects/:id/role-priority", "POST", "set_priority"},
		{"/api/projects/:id/role-chain/repair", "POST", "repair_chain"},
		{"/api/role-catalog/:id", "DELETE", "delete_role_catalog"},
		{"", "POST", "post_unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if got := routeAction(tt.path, tt.method); got != tt.want {
				t.Errorf("routeAction() = %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestFormatAuditMessage(t *testing.T) {
	if got := formatAuditMessage("ops", "POST", "/api/projects/1/roles", 201); got != "[Audit] ops POST /api/projects/1/roles -> OK" {
		t.Errorf("got %q", got)
	}
	if got := formatAuditMessage("", "PUT", "/x", 409); got != "[Audit] anonymous PUT /x -> Failed (409)" {
		t.Errorf("got %q", got)
	}
}

func TestTruncateBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		max  int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"ascii cut", "abcdef", 4, "abcd...[truncated]"},
		{"inside two-byte rune", "aé", 2, "a...[truncated]"},
		{"inside four-byte rune", "ab🚒", 4, "ab...[truncated]"},
		{"rune boundary", "é🚒", 2, "é...[truncated]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateBody([]byte(tt.body), tt.max)
			if got != tt.want {
				t.Errorf("truncateBody(%q, %d) = %q, expected %q", tt.body, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("result %q is not valid UTF-8", got)
			}
		})
	}

	long := strings.Repeat("ü", maxAuditBody)
	if got := truncateBody([]byte(long), maxAuditBody); !utf8.ValidString(got) || len(got) > maxAuditBody+len("...[truncated]") {
		t.Errorf("long body truncated to invalid or oversized snippet (%d bytes)", len(got))
	}
}

func TestAuditLog_RecordsWrites(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:audit_test?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	if err := db.AutoMigrate(&models.SystemLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	services.InitSystemLogger(db)
	defer services.InitSystemLogger(nil)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserID, uint(5))
		c.Set(ContextUsername, "ops")
		c.Next()
	})
	router.Use(AuditLog())
	router.POST("/api/projects/:id/role-priority", func(c *gin.Context) {
		c.JSON(http.StatusConflict, gin.H{"code": 409})
	})
	router.GET("/api/projects/:id/role-chain", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": 0})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/projects/12/role-priority", strings.NewReader(`{"employee":3}`))
	router.ServeHTTP(w, req)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/projects/12/role-chain", nil)
	router.ServeHTTP(w, req)

	var rows []models.SystemLog
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("load logs: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected only the write to be audited, got %d rows", len(rows))
	}
	row := rows[0]
	if row.Module != services.ModuleAudit || row.Action != "set_priority" {
		t.Errorf("module/action = %s/%s", row.Module, row.Action)
	}
	if row.Level != models.LogLevelWarning {
		t.Errorf("level = %q, expected warning for a 409", row.Level)
	}
	if row.ProjectID == nil || *row.ProjectID != 12 {
		t.Errorf("project_id = %v, expected 12", row.ProjectID)
	}
	if row.UserID == nil || *row.UserID != 5 {
		t.Errorf("user_id = %v, expected 5", row.UserID)
	}
	if !strings.Contains(row.Extra, `\"employee\":3`) {
		t.Errorf("extra should carry the request body, got %s", row.Extra)
	}
}
