package services

import (
	"encoding/json"
	"time"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/logger"
	"gorm.io/gorm"
)

var globalDB *gorm.DB

func InitSystemLogger(db *gorm.DB) {
	globalDB = db
}

const (
	ModuleRoleChain = "role_chain"
	ModuleAudit     = "audit"
)

// LogAudit records one write request; 4xx responses are stored as warnings and 5xx as errors.
func LogAudit(projectID *uint, action, message string, status int, userID *uint, ip, userAgent string, extra interface{}) {
	level := models.LogLevelInfo
	if status >= 500 {
		level = models.LogLevelError
	} else if status >= 400 {
		level = models.LogLevelWarning
	}
	writeLog(level, ModuleAudit, action, message, projectID, userID, ip, userAgent, extra)
}

// LogChainChange records a committed role-chain mutation against its project.
func LogChainChange(level string, projectID uint, action, message string, extra interface{}) {
	pid := projectID
	writeLog(level, ModuleRoleChain, action, message, &pid, nil, "", "", extra)
}

func writeLog(level, module, action, message string, projectID, userID *uint, ip, userAgent string, extra interface{}) {
	if globalDB == nil {
		return
	}

	var extraStr string
	if extra != nil {
		if b, err := json.Marshal(extra); err == nil {
			extraStr = string(b)
		}
	}

	entry := &models.SystemLog{
		Level:     level,
		Module:    module,
		Action:    action,
		Message:   message,
		ProjectID: projectID,
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		Extra:     extraStr,
		CreatedAt: time.Now(),
	}
	if err := globalDB.Create(entry).Error; err != nil {
		logger.Warnf("[SystemLog] Failed to write %s/%s: %v", module, action, err)
	}
}

type SystemLogService struct {
	db *gorm.DB
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db}
}

type ChainHistoryRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Module   string `form:"module" binding:"omitempty,oneof=role_chain audit"`
	Level    string `form:"level"`
	Action   string `form:"action"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

// ChainHistory lists log entries of one project, newest first.
// Module defaults to the engine's own entries; "audit" selects request audit rows.
func (s *SystemLogService) ChainHistory(projectID uint, req *ChainHistoryRequest) (*SystemLogListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}
	if req.Module == "" {
		req.Module = ModuleRoleChain
	}

	var logs []models.SystemLog
	var total int64

	query := s.db.Model(&models.SystemLog{}).
		Where("module = ? AND project_id = ?", req.Module, projectID)
	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Action != "" {
		query = query.Where("action = ?", req.Action)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return &SystemLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

// CleanupOldLogs deletes logs older than the specified number of days
// Returns the number of deleted records
func (s *SystemLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoffTime := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoffTime).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
