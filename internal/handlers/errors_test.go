package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/services"
	"github.com/gin-gonic/gin"
)

func TestToAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		key    string
	}{
		{"validation", &services.RoleChainError{Kind: services.KindValidation, Subject: "roles", Message: "empty"}, http.StatusBadRequest, "role_chain.validation.roles"},
		{"not found", &services.RoleChainError{Kind: services.KindNotFound, Subject: "employee", ID: 4, Message: "employee not found"}, http.StatusNotFound, "role_chain.not_found.employee"},
		{"empty", &services.RoleChainError{Kind: services.KindEmpty, Subject: "project_role", Message: "none"}, http.StatusNotFound, "role_chain.empty.project_role"},
		{"invariant", &services.RoleChainError{Kind: services.KindInvariant, Subject: "team", Message: "no team"}, http.StatusUnprocessableEntity, "role_chain.invariant.team"},
		{"wrapped conflict", fmt.Errorf("set priority: %w", &services.RoleChainError{Kind: services.KindConflict, Subject: "cycle", Message: "loop"}), http.StatusConflict, "role_chain.conflict.cycle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := toAppError(tt.err)
			if appErr == nil {
				t.Fatal("expected an AppError")
			}
			if appErr.HTTPStatus != tt.status {
				t.Errorf("status = %d, expected %d", appErr.HTTPStatus, tt.status)
			}
			if appErr.Key != tt.key {
				t.Errorf("key = %q, expected %q", appErr.Key, tt.key)
			}
		})
	}

	if toAppError(errors.New("disk full")) != nil {
		t.Error("unknown errors should not map to an AppError")
	}
}

func TestRespondError_HidesInternalErrors(t *testing.T) {
	r := gin.New()
	r.GET("/boom", func(c *gin.Context) {
		respondError(c, errors.New("pq: connection refused"))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/boom", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, expected 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("internal cause leaked: %s", w.Body.String())
	}
}

func TestParseIDParam(t *testing.T) {
	tests := []struct {
		raw string
		ok  bool
	}{
		{"12", true},
		{"0", false},
		{"-3", false},
		{"abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			r := gin.New()
			var got bool
			r.GET("/p/:id", func(c *gin.Context) {
				_, got = parseIDParam(c, "id")
				if got {
					c.Status(http.StatusOK)
				}
			})
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/p/"+tt.raw, nil)
			r.ServeHTTP(w, req)

			if got != tt.ok {
				t.Errorf("ok = %v, expected %v", got, tt.ok)
			}
			if !tt.ok && w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, expected 400", w.Code)
			}
		})
	}
}
