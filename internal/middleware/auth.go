package middleware

import (
	"errors"
	"strings"

	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/HFI-UC/UtiOpia-sub001/internal/auth"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// AuthMiddleware resolves an optional bearer token into the request actor.
// Requests without a token continue as anonymous callers; a token that does
// not verify is rejected. The role is read from the user record so demotions
// apply to tokens already issued.
func AuthMiddleware(jwtService *auth.JWTService, users repository.Users) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(actorKey, models.Actor{})
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortWithError(c, apperrors.Unauthorized("invalid authorization header"))
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			abortWithError(c, apperrors.Unauthorized("invalid or expired token"))
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				abortWithError(c, apperrors.Unauthorized("invalid or expired token"))
				return
			}
			abortWithError(c, apperrors.Internal(err))
			return
		}

		uid := user.ID
		c.Set(actorKey, models.Actor{UserID: &uid, Email: user.Email, Role: user.Role})
		c.Next()
	}
}

// RequireAuth rejects anonymous callers. It must run after AuthMiddleware.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ActorFrom(c).Authenticated() {
			abortWithError(c, apperrors.Unauthorized("authentication required"))
			return
		}
		c.Next()
	}
}

// ActorFrom returns the caller resolved by AuthMiddleware, or the anonymous
// actor when none was set.
func ActorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(models.Actor); ok {
			return actor
		}
	}
	return models.Actor{}
}

func abortWithError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	c.AbortWithStatusJSON(apperrors.HTTPStatus(code), gin.H{
		"error": apperrors.PublicMessage(err),
		"code":  code,
	})
}
