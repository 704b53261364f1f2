package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/HFI-UC/UtiOpia-sub001/internal/audit"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Recovery turns a panic into a generic 500. The panic value and stack go to
// the log and to an internal "error" audit record, never to the client.
func Recovery(auditLog *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			stack := string(debug.Stack())
			log.Error().
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Interface("panic", rec).
				Str("stack", stack).
				Msg("panic recovered")

			if auditLog != nil {
				auditLog.Write(c.Request.Context(), models.ActionError, ActorFrom(c).UserID, map[string]any{
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
					"error":  fmt.Sprint(rec),
					"stack":  stack,
				})
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
				"code":  apperrors.CodeInternal,
			})
		}()
		c.Next()
	}
}
