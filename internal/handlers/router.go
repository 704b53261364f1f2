package handlers

import (
	"context"
	"net/http"

	"github.com/HFI-UC/UtiOpia-sub001/internal/acl"
	"github.com/HFI-UC/UtiOpia-sub001/internal/audit"
	"github.com/HFI-UC/UtiOpia-sub001/internal/auth"
	"github.com/HFI-UC/UtiOpia-sub001/internal/ban"
	"github.com/HFI-UC/UtiOpia-sub001/internal/middleware"
	"github.com/HFI-UC/UtiOpia-sub001/internal/moderation"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
	"github.com/HFI-UC/UtiOpia-sub001/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type RouterDeps struct {
	Store          *repository.Store
	Engine         *moderation.Engine
	Bans           *ban.Registry
	Policy         *acl.Policy
	JWT            *auth.JWTService
	Audit          *audit.Logger
	RateLimiter    *middleware.RateLimiter
	WS             *websocket.Handler
	Logger         zerolog.Logger
	AllowedOrigins []string
	Health         map[string]HealthCheck
}

// NewRouter wires the HTTP surface.
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery(d.Audit))
	router.Use(middleware.LoggingMiddleware(d.Logger))
	router.Use(middleware.CORSMiddleware(d.AllowedOrigins))

	router.GET("/health", healthHandler(d.Health))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if d.WS != nil {
		router.GET("/ws", d.WS.HandleWebSocket)
	}

	authHandler := NewAuthHandler(d.Store.Users, d.JWT, d.Policy, d.Audit)
	msgHandler := NewMessageHandler(d.Engine, d.Audit)
	banHandler := NewBanHandler(d.Bans, d.Audit)
	userHandler := NewUserHandler(d.Store.Users, d.Store.Audit, d.Policy, d.Audit)

	// Public routes
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	// Anonymous callers are allowed through; each operation checks the
	// actor's role itself.
	api := router.Group("/")
	api.Use(middleware.AuthMiddleware(d.JWT, d.Store.Users))
	{
		submit := []gin.HandlerFunc{msgHandler.SubmitMessage}
		if d.RateLimiter != nil {
			submit = append([]gin.HandlerFunc{middleware.RateLimitMiddleware(d.RateLimiter, "submit")}, submit...)
		}

		// Message routes
		api.POST("/messages", submit...)
		api.GET("/messages", msgHandler.GetMessages)
		api.GET("/messages/:id", msgHandler.GetMessage)
		api.PUT("/messages/:id", msgHandler.ReviewMessage)
		api.PATCH("/messages/:id", msgHandler.EditMessage)
		api.DELETE("/messages/:id", msgHandler.DeleteMessage)
		api.GET("/moderation/queue", msgHandler.GetQueue)

		// Ban routes
		api.POST("/bans", banHandler.CreateBan)
		api.GET("/bans", banHandler.GetBans)
		api.GET("/bans/history", banHandler.GetBanHistory)
		api.PUT("/bans/:id", banHandler.UpdateBan)
		api.DELETE("/bans/:id", banHandler.LiftBan)

		// Account routes
		api.GET("/me", middleware.RequireAuth(), authHandler.GetMe)
		api.PUT("/users/:id/role", middleware.RequireAuth(), userHandler.UpdateRole)
		api.GET("/audit", middleware.RequireAuth(), userHandler.GetAudit)
	}

	return router
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(c.Request.Context()); err != nil {
				results[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "checks": results})
	}
}
