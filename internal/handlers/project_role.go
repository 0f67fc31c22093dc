package handlers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/middleware"
	"github.com/creator-cell/emergex-portals-api-sub000/internal/services"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ProjectRoleHandler exposes role assignments and the escalation chain of a project.
type ProjectRoleHandler struct {
	roles *services.ProjectRoleService
	logs  *services.SystemLogService
}

func NewProjectRoleHandler(db *gorm.DB, roles *services.ProjectRoleService) *ProjectRoleHandler {
	return &ProjectRoleHandler{
		roles: roles,
		logs:  services.NewSystemLogService(db),
	}
}

type AddRolesRequest struct {
	Roles []services.RoleAssignment `json:"roles"`
}

// badBody names the offending field when the JSON decoder can tell which one it was.
func badBody(c *gin.Context, err error) {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		field := typeErr.Field
		if i := strings.LastIndex(field, "."); i >= 0 {
			field = field[i+1:]
		}
		response.Error(c, response.NewBadRequest(field+" has an invalid value").
			WithKey("role_chain.validation."+field))
		return
	}
	response.Error(c, response.NewBadRequest(err.Error()).WithKey("role_chain.validation.body"))
}

// AddRoles assigns a batch of employees to roles in the project.
func (h *ProjectRoleHandler) AddRoles(c *gin.Context) {
	projectID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req AddRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	records, err := h.roles.AddRolesToProject(c.Request.Context(), projectID, req.Roles)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, records)
}

// UpdateRole changes the role, assignee or description of one record.
func (h *ProjectRoleHandler) UpdateRole(c *gin.Context) {
	projectID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	recordID, ok := parseIDParam(c, "roleId")
	if !ok {
		return
	}

	var req services.UpdateProjectRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	record, err := h.roles.UpdateProjectRole(c.Request.Context(), projectID, recordID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, record)
}

// SetPriority places an employee in the chain relative to from and to.
func (h *ProjectRoleHandler) SetPriority(c *gin.Context) {
	projectID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SetRolePriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, err)
		return
	}

	record, err := h.roles.SetRolePriority(c.Request.Context(), projectID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, record)
}

// GetChain returns the project's records grouped by priority and predecessor.
func (h *ProjectRoleHandler) GetChain(c *gin.Context) {
	projectID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	grouping, err := h.roles.GetProjectRolesByPriority(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, grouping)
}

func (h *ProjectRoleHandler) Integrity(c *gin.Context) {
	projectID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	report, err := h.roles.VerifyChain(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *ProjectRoleHandler) Repair(c *gin.Context) {
	projectID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	report, err := h.roles.RepairChain(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, report)
}

// History lists the audit trail of chain changes for the project.
func (h *ProjectRoleHandler) History(c *gin.Context) {
	projectID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req services.ChainHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, response.NewBadRequest(err.Error()).WithKey("common.invalid_query"))
		return
	}

	resp, err := h.logs.ChainHistory(projectID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, resp)
}

// GetMyRole returns the requester's role record in the incident's project.
func (h *ProjectRoleHandler) GetMyRole(c *gin.Context) {
	incidentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	record, err := h.roles.GetUserRoleForIncident(c.Request.Context(), incidentID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, record)
}

// GetIncidentRoles lists the other role holders of the incident's project.
func (h *ProjectRoleHandler) GetIncidentRoles(c *gin.Context) {
	incidentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	groups, err := h.roles.GetRolesByIncident(c.Request.Context(), incidentID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, groups)
}
