package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/acl"
	"github.com/HFI-UC/UtiOpia-sub001/internal/audit"
	"github.com/HFI-UC/UtiOpia-sub001/internal/auth"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository/memory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuthMiddleware(t *testing.T) {
	store := memory.NewStore()
	jwtService := auth.NewJWTService("test-secret", 1)

	user := &models.User{
		ID:          uuid.New(),
		Email:       "mod@example.edu",
		DisplayName: "Mod",
		Role:        acl.RoleModerator,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, store.Users.Create(context.Background(), user))

	// The token still says "user"; the stored role wins.
	token, err := jwtService.GenerateToken(user.ID, user.Email, acl.RoleUser)
	require.NoError(t, err)
	ghost, err := jwtService.GenerateToken(uuid.New(), "ghost@example.edu", acl.RoleUser)
	require.NoError(t, err)

	router := gin.New()
	router.Use(AuthMiddleware(jwtService, store.Users))
	router.GET("/whoami", func(c *gin.Context) {
		actor := ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": actor.Authenticated(), "role": actor.Role})
	})
	router.GET("/private", RequireAuth(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"anonymous", "/whoami", "", http.StatusOK, `"authenticated":false`},
		{"valid token", "/whoami", "Bearer " + token, http.StatusOK, `"role":"moderator"`},
		{"garbage token", "/whoami", "Bearer nope", http.StatusUnauthorized, `"code":"UNAUTHORIZED"`},
		{"wrong scheme", "/whoami", "Basic abc", http.StatusUnauthorized, `"code":"UNAUTHORIZED"`},
		{"unknown user", "/whoami", "Bearer " + ghost, http.StatusUnauthorized, `"code":"UNAUTHORIZED"`},
		{"private anonymous", "/private", "", http.StatusUnauthorized, `"authentication required"`},
		{"private authenticated", "/private", "Bearer " + token, http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Contains(t, w.Body.String(), tt.body)
			}
		})
	}
}

func TestRateLimitMiddleware_Local(t *testing.T) {
	rl := NewRateLimiter(nil, 1, 2)

	router := gin.New()
	router.POST("/messages", RateLimitMiddleware(rl, "submit"), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/messages", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, send("10.0.0.1"))
	assert.Equal(t, http.StatusCreated, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	// Other callers have their own bucket.
	assert.Equal(t, http.StatusCreated, send("10.0.0.2"))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(nil, 60, 1)
	now := time.Now()
	rl.getLimiter("submit:a", now.Add(-time.Hour))
	rl.getLimiter("submit:b", now)

	assert.Equal(t, 1, rl.Cleanup(now))
	assert.Len(t, rl.limiters, 1)
}

func TestRecovery(t *testing.T) {
	store := memory.NewStore()
	auditLog := audit.NewLogger(store.Audit, audit.Config{})

	router := gin.New()
	router.Use(Recovery(auditLog))
	router.GET("/boom", func(c *gin.Context) {
		panic("db password=hunter2 exploded")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
	assert.NotContains(t, w.Body.String(), "hunter2")

	records, total, err := store.Audit.List(context.Background(), models.AuditFilter{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, models.ActionError, records[0].Action)
	assert.Equal(t, "/boom", records[0].Meta["path"])
	assert.NotEmpty(t, records[0].Meta["stack"])
}

func TestCORSMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware([]string{"https://wall.example.edu", "*.campus.edu"}))
	router.GET("/messages", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://wall.example.edu", true},
		{"https://app.campus.edu", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/messages", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		if tt.allowed {
			assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
		} else {
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		}
	}
}
