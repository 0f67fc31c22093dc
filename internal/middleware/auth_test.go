package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/creator-cell/emergex-portals-api-sub000/internal/utils"
	"github.com/creator-cell/emergex-portals-api-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-middleware-testing")
}

func protectedRouter() *gin.Engine {
	router := gin.New()
	router.Use(AuthRequired())
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"user_id":  GetUserID(c),
			"username": GetUsername(c),
			"role":     GetRole(c),
		})
	})
	return router
}

func decodeKey(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return resp.Key
}

func TestAuthRequired_Rejects(t *testing.T) {
	expired, _ := utils.GenerateToken(1, "old", "user", -1)
	anonymous, _ := utils.GenerateToken(0, "nobody", "user", 1)

	tests := []struct {
		name   string
		header string
		key    string
	}{
		{"no header", "", "auth.missing_header"},
		{"no scheme", "InvalidToken", "auth.invalid_header"},
		{"basic scheme", "Basic token123", "auth.invalid_header"},
		{"bearer without token", "Bearer ", "auth.invalid_header"},
		{"garbage token", "Bearer invalid.jwt.token", "auth.invalid_token"},
		{"expired token", "Bearer " + expired, "auth.invalid_token"},
		{"token without user", "Bearer " + anonymous, "auth.invalid_token"},
	}

	router := protectedRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
			}
			if key := decodeKey(t, w); key != tt.key {
				t.Errorf("key = %q, expected %q", key, tt.key)
			}
		})
	}
}

func TestAuthRequired_ValidToken(t *testing.T) {
	token, err := utils.GenerateToken(7, "dispatcher", "user", 1)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	protectedRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var body struct {
		UserID   uint   `json:"user_id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UserID != 7 || body.Username != "dispatcher" || body.Role != "user" {
		t.Errorf("identity = %+v", body)
	}
}

func TestAdminRequired(t *testing.T) {
	tests := []struct {
		name string
		role string
		want int
	}{
		{"no role", "", http.StatusForbidden},
		{"user role", "user", http.StatusForbidden},
		{"admin role", "admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(func(c *gin.Context) {
				if tt.role != "" {
					c.Set(ContextRole, tt.role)
				}
				c.Next()
			})
			router.Use(AdminRequired())
			router.POST("/repair", func(c *gin.Context) {
				c.JSON(200, gin.H{"status": "ok"})
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/repair", nil)
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestContextGetters_WrongType(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if id := GetUserID(c); id != 0 {
		t.Errorf("expected 0 for missing user_id, got %d", id)
	}

	c.Set(ContextUserID, 42)
	if id := GetUserID(c); id != 0 {
		t.Errorf("int user_id should be ignored, got %d", id)
	}

	c.Set(ContextUserID, uint(42))
	if id := GetUserID(c); id != 42 {
		t.Errorf("expected 42, got %d", id)
	}

	c.Set(ContextUsername, 5)
	if name := GetUsername(c); name != "" {
		t.Errorf("non-string username should be ignored, got %q", name)
	}
}
