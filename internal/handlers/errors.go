package handlers

import (
	"errors"
	"strconv"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/services"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/logger"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

// toAppError maps a role chain error onto an HTTP error carrying its message key.
// Unknown errors return nil and are reported as a generic 500.
func toAppError(err error) *response.AppError {
	rcErr, ok := services.AsRoleChainError(err)
	if !ok {
		return nil
	}

	var appErr *response.AppError
	switch {
	case errors.Is(rcErr, services.ErrValidation):
		appErr = response.NewBadRequest(rcErr.Error())
	case errors.Is(rcErr, services.ErrNotFound), errors.Is(rcErr, services.ErrEmpty):
		appErr = response.NewNotFound(rcErr.Error())
	case errors.Is(rcErr, services.ErrInvariant):
		appErr = response.NewUnprocessable(rcErr.Error())
	case errors.Is(rcErr, services.ErrConflict):
		appErr = response.NewConflict(rcErr.Error())
	default:
		return nil
	}
	return appErr.WithKey(rcErr.MessageKey())
}

func respondError(c *gin.Context, err error) {
	if appErr := toAppError(err); appErr != nil {
		response.Error(c, appErr)
		return
	}
	logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	response.Error(c, err)
}

// parseIDParam reads a positive numeric path parameter.
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.Error(c, response.NewBadRequest("invalid "+name).WithKey("common.invalid_param"))
		return 0, false
	}
	return uint(id), true
}
