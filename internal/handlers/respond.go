package handlers

import (
	"net/http"
	"runtime/debug"

	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/HFI-UC/UtiOpia-sub001/internal/audit"
	"github.com/HFI-UC/UtiOpia-sub001/internal/middleware"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorResponse sends a standardized error response
func ErrorResponse(c *gin.Context, status int, code apperrors.Code, message string) {
	c.JSON(status, gin.H{"error": message, "code": code})
}

// respondError maps err onto the API error shape. Internal failures are
// logged and audited with their cause; the client only sees a generic text.
func respondError(c *gin.Context, auditLog *audit.Logger, err error) {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeInternal {
		log.Error().Err(err).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Msg("request failed")
		if auditLog != nil {
			auditLog.Write(c.Request.Context(), models.ActionError, middleware.ActorFrom(c).UserID, map[string]any{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
				"stack":  string(debug.Stack()),
			})
		}
	}
	ErrorResponse(c, apperrors.HTTPStatus(code), code, apperrors.PublicMessage(err))
}

// bindError reports a malformed request body or query.
func bindError(c *gin.Context, err error) {
	ErrorResponse(c, http.StatusBadRequest, apperrors.CodeInvalid, err.Error())
}

// rejectBody is bindError for mutating endpoints: the undecodable attempt is
// audited under action like any other rejected one. meta may carry its own
// outcome.
func rejectBody(c *gin.Context, auditLog *audit.Logger, action string, meta map[string]any, err error) {
	if meta == nil {
		meta = map[string]any{}
	}
	if _, ok := meta["outcome"]; !ok {
		meta["outcome"] = "failure"
	}
	meta["error"] = string(apperrors.CodeInvalid)
	meta["ip"] = c.ClientIP()
	if auditLog != nil {
		auditLog.Write(c.Request.Context(), action, middleware.ActorFrom(c).UserID, meta)
	}
	bindError(c, err)
}
