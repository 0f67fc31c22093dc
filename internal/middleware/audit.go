package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/services"
	"github.com/gin-gonic/gin"
)

const maxAuditBody = 2000

// AuditLog records write operations (POST/PUT/PATCH/DELETE) to system_logs.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != http.MethodPost && method != http.MethodPut &&
			method != http.MethodPatch && method != http.MethodDelete {
			c.Next()
			return
		}

		var bodySnippet string
		if c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = truncateBody(bodyBytes, maxAuditBody)
		}

		c.Next()

		userID := GetUserID(c)
		var uid *uint
		if userID > 0 {
			uid = &userID
		}

		status := c.Writer.Status()
		action := routeAction(c.FullPath(), method)
		services.LogAudit(auditProjectID(c), action,
			formatAuditMessage(GetUsername(c), method, c.Request.URL.Path, status),
			status, uid, c.ClientIP(), c.Request.UserAgent(),
			map[string]interface{}{
				"method": method,
				"path":   c.Request.URL.Path,
				"status": status,
				"body":   bodySnippet,
			})
	}
}

var routeActions = map[string]string{
	"POST /api/projects/:id/roles":             "add_roles",
	"PUT /api/projects/:id/roles/:roleId":      "update_role",
	"POST /api/projects/:id/role-priority":     "set_priority",
	"POST /api/projects/:id/role-chain/repair": "repair_chain",
}

// routeAction names a write route, falling back to the method and first path segment.
// e.g. "/api/teams/:id" + "PUT" -> "put_teams"
func routeAction(fullPath, method string) string {
	if action, ok := routeActions[method+" "+fullPath]; ok {
		return action
	}
	segment := strings.SplitN(strings.TrimPrefix(fullPath, "/api/"), "/", 2)[0]
	if segment == "" {
		segment = "unknown"
	}
	return strings.ToLower(method) + "_" + strings.ReplaceAll(segment, "-", "_")
}

// auditProjectID returns the project of a /api/projects/:id route.
func auditProjectID(c *gin.Context) *uint {
	if !strings.HasPrefix(c.FullPath(), "/api/projects/:id") {
		return nil
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return nil
	}
	pid := uint(id)
	return &pid
}

func formatAuditMessage(username, method, path string, status int) string {
	var b strings.Builder
	b.WriteString("[Audit] ")
	if username == "" {
		username = "anonymous"
	}
	b.WriteString(username)
	b.WriteString(" ")
	b.WriteString(method)
	b.WriteString(" ")
	b.WriteString(path)
	b.WriteString(" -> ")
	if status >= 200 && status < 300 {
		b.WriteString("OK")
	} else {
		b.WriteString("Failed (")
		b.WriteString(strconv.Itoa(status))
		b.WriteString(")")
	}
	return b.String()
}

// truncateBody cuts b to at most max bytes without splitting a UTF-8 rune.
func truncateBody(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut]) + "...[truncated]"
}
