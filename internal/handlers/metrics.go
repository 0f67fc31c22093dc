package handlers

import (
	"github.com/creator-cell/emergex-portals-api-sub000/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics serves the service registry in Prometheus text format.
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(services.MetricsRegistry, promhttp.HandlerOpts{}))
}
