package main

import (
	"github.com/creator-cell/emergex-portals-api-sub000/internal/handlers"
	"github.com/creator-cell/emergex-portals-api-sub000/internal/middleware"
	"github.com/creator-cell/emergex-portals-api-sub000/internal/models"
	"github.com/creator-cell/emergex-portals-api-sub000/internal/services"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/logger"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Server.AllowedOrigins))

	r.GET("/health", handlers.NewHealthHandler(models.GetDB()).CheckHealth)
	r.GET("/metrics", handlers.Metrics())

	api := r.Group("/api")
	{
		// SSE (token checked by the handler, EventSource cannot set headers)
		sseHandler := handlers.NewSSEHandler(services.GetSSEHub())
		api.GET("/events/role-chain", sseHandler.StreamChainEvents)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.AuditLog())
		{
			roleHandler := handlers.NewProjectRoleHandler(models.GetDB(), svc.roleService)
			limited := svc.writeLimiter.Middleware()

			// Project role chain
			protected.GET("/projects/:id/role-chain", roleHandler.GetChain)
			protected.GET("/projects/:id/role-chain/integrity", roleHandler.Integrity)
			protected.GET("/projects/:id/role-chain/history", roleHandler.History)
			protected.POST("/projects/:id/roles", limited, roleHandler.AddRoles)
			protected.PUT("/projects/:id/roles/:roleId", limited, roleHandler.UpdateRole)
			protected.POST("/projects/:id/role-priority", limited, roleHandler.SetPriority)
			protected.POST("/projects/:id/role-chain/repair", middleware.AdminRequired(), limited, roleHandler.Repair)

			// Incident views
			protected.GET("/incidents/:id/my-role", roleHandler.GetMyRole)
			protected.GET("/incidents/:id/roles", roleHandler.GetIncidentRoles)
		}
	}
}
