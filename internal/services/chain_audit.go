package services

import (
	"context"
	"sync"
	"time"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/config"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/logger"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	auditLockName    = "chain_audit"
	auditLockKey     = "nightly"
	auditConcurrency = 4
)

// AuditSummary is the outcome of one sweep over every project chain.
type AuditSummary struct {
	Projects   int   `json:"projects"`
	Unhealthy  int   `json:"unhealthy"`
	Repaired   int   `json:"repaired"`
	LogsPurged int64 `json:"logs_purged"`
}

// ChainAuditScheduler periodically verifies every project chain and purges
// old system logs. Only one instance runs a sweep at a time.
type ChainAuditScheduler struct {
	db            *gorm.DB
	roles         *ProjectRoleService
	logs          *SystemLogService
	spec          string
	repair        bool
	retentionDays int
	cronScheduler *cron.Cron
	entryID       cron.EntryID
	mu            sync.Mutex
}

func NewChainAuditScheduler(db *gorm.DB, roles *ProjectRoleService, cfg *config.Config) *ChainAuditScheduler {
	return &ChainAuditScheduler{
		db:            db,
		roles:         roles,
		logs:          NewSystemLogService(db),
		spec:          cfg.Chain.AuditCron,
		repair:        cfg.Chain.AutoRepair,
		retentionDays: cfg.Log.RetentionDays,
	}
}

func (s *ChainAuditScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cronScheduler = cron.New()
	entryID, err := s.cronScheduler.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			logger.Errorf("[ChainAudit] Sweep failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.cronScheduler.Start()
	logger.Infof("[ChainAudit] Scheduler started (cron: %s)", s.spec)
	return nil
}

func (s *ChainAuditScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
		s.cronScheduler = nil
	}
}

// RunOnce verifies all projects. It returns a nil summary when another
// instance holds the sweep lease.
func (s *ChainAuditScheduler) RunOnce(ctx context.Context) (*AuditSummary, error) {
	owner := uuid.NewString()
	ok, err := tryAcquireLease(ctx, s.db, auditLockName, auditLockKey, owner, time.Hour)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Infof("[ChainAudit] Sweep already running elsewhere, skipping")
		return nil, nil
	}
	defer releaseLease(s.db, auditLockName, auditLockKey, owner)

	projectIDs, err := NewDirectory(s.db).ProjectIDs(ctx)
	if err != nil {
		return nil, err
	}

	summary := &AuditSummary{Projects: len(projectIDs)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(auditConcurrency)
	for _, pid := range projectIDs {
		g.Go(func() error {
			report, err := s.roles.VerifyChain(gctx, pid)
			if err != nil {
				return err
			}
			if report.Healthy {
				chainTasks.WithLabelValues("audit", "healthy").Inc()
				return nil
			}
			mu.Lock()
			summary.Unhealthy++
			mu.Unlock()
			if !s.repair {
				chainTasks.WithLabelValues("audit", "unhealthy").Inc()
				return nil
			}
			repaired, err := s.roles.RepairChain(gctx, pid)
			if err != nil {
				return err
			}
			chainTasks.WithLabelValues("audit", "repaired").Inc()
			mu.Lock()
			summary.Repaired += repaired.Repaired
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	purged, err := s.logs.CleanupOldLogs(s.retentionDays)
	if err != nil {
		logger.Warnf("[ChainAudit] Failed to purge old logs: %v", err)
	}
	summary.LogsPurged = purged

	logger.Info().
		Int("projects", summary.Projects).
		Int("unhealthy", summary.Unhealthy).
		Int("repaired", summary.Repaired).
		Int64("logs_purged", summary.LogsPurged).
		Msg("[ChainAudit] Sweep complete")
	return summary, nil
}
