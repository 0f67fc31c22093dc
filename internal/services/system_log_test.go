package services

import (
	"testing"
	"time"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
)

func TestChainHistory_Filters(t *testing.T) {
	db := openTestDB(t)
	InitSystemLogger(db)
	t.Cleanup(func() { InitSystemLogger(nil) })

	uid := uint(3)
	pid := uint(7)
	LogChainChange(models.LogLevelInfo, 7, ChainActionPrioritySet, "priority set", nil)
	LogChainChange(models.LogLevelInfo, 7, ChainActionRepaired, "repaired", nil)
	LogChainChange(models.LogLevelInfo, 8, ChainActionPrioritySet, "other project", nil)
	LogAudit(&pid, "set_priority", "[Audit] alice POST", 409, &uid, "10.0.0.1", "curl", nil)

	svc := NewSystemLogService(db)
	tests := []struct {
		name  string
		req   ChainHistoryRequest
		total int64
	}{
		{"defaults to engine entries", ChainHistoryRequest{}, 2},
		{"by action", ChainHistoryRequest{Action: ChainActionRepaired}, 1},
		{"audit module", ChainHistoryRequest{Module: ModuleAudit}, 1},
		{"audit warnings", ChainHistoryRequest{Module: ModuleAudit, Level: models.LogLevelWarning}, 1},
		{"no match", ChainHistoryRequest{Level: models.LogLevelError}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			resp, err := svc.ChainHistory(7, &req)
			if err != nil {
				t.Fatalf("ChainHistory: %v", err)
			}
			if resp.Total != tt.total || len(resp.Items) != int(tt.total) {
				t.Errorf("total = %d, items = %d, expected %d", resp.Total, len(resp.Items), tt.total)
			}
			if resp.Page != 1 || resp.PageSize != 20 {
				t.Errorf("paging defaults = %d/%d", resp.Page, resp.PageSize)
			}
		})
	}
}

func TestCleanupOldLogs(t *testing.T) {
	db := openTestDB(t)
	svc := NewSystemLogService(db)

	old := models.SystemLog{Level: models.LogLevelInfo, Module: ModuleRoleChain, Action: "old", CreatedAt: time.Now().AddDate(0, 0, -40)}
	fresh := models.SystemLog{Level: models.LogLevelInfo, Module: ModuleRoleChain, Action: "fresh", CreatedAt: time.Now()}
	db.Create(&old)
	db.Create(&fresh)

	if n, err := svc.CleanupOldLogs(0); err != nil || n != 0 {
		t.Fatalf("retention 0 should keep everything, got %d, %v", n, err)
	}
	n, err := svc.CleanupOldLogs(30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, expected 1", n)
	}
	var left int64
	db.Model(&models.SystemLog{}).Count(&left)
	if left != 1 {
		t.Errorf("remaining = %d, expected 1", left)
	}
}
