package main

import (
	"github.com/creator-cell/emergex-portals-api-sub000/internal/config"
	"github.com/creator-cell/emergex-portals-api-sub000/internal/middleware"
	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"github.com/creator-cell/emergex-portals-api-sub000/internal/services"
	"github.com/creator-cell/emergex-portals-api-sub000/internal/utils"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/logger"
)

// appServices holds all initialized services needed by the application.
type appServices struct {
	cfg            *config.Config
	roleService    *services.ProjectRoleService
	taskQueue      services.TaskQueue
	worker         *services.Worker
	auditScheduler *services.ChainAuditScheduler
	writeLimiter   *middleware.RateLimiter
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	services.InitSystemLogger(models.GetDB())

	locker := services.NewChainLocker(cfg, models.GetDB())
	roleService := services.NewProjectRoleService(models.GetDB(), locker)
	roleService.SetAutoRepair(cfg.Chain.AutoRepair)

	// Uses Redis if enabled, otherwise verification runs in-process
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(roleService.ProcessChainTask)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.InitWorker(cfg)
		if worker != nil {
			worker.SetProcessor(roleService.ProcessChainTask)
			if err := worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start chain worker")
			}
		}
	}

	var auditScheduler *services.ChainAuditScheduler
	if cfg.Chain.AuditEnabled {
		auditScheduler = services.NewChainAuditScheduler(models.GetDB(), roleService, cfg)
		if err := auditScheduler.Start(); err != nil {
			logger.Error().Err(err).Str("cron", cfg.Chain.AuditCron).Msg("Failed to start chain audit")
			auditScheduler = nil
		}
	}

	return &appServices{
		cfg:            cfg,
		roleService:    roleService,
		taskQueue:      taskQueue,
		worker:         worker,
		auditScheduler: auditScheduler,
		writeLimiter:   middleware.NewRateLimiter(cfg.Server.WriteRPS, cfg.Server.WriteBurst),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	if s.auditScheduler != nil {
		s.auditScheduler.Stop()
	}
	s.writeLimiter.Stop()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}

	if sqlDB, err := models.GetDB().DB(); err == nil {
		sqlDB.Close()
	}
}
