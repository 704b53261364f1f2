package handlers

import (
	"errors"
	"net/http"

	"github.com/HFI-UC/UtiOpia-sub001/internal/acl"
	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/HFI-UC/UtiOpia-sub001/internal/audit"
	"github.com/HFI-UC/UtiOpia-sub001/internal/middleware"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserHandler covers account administration and the audit trail.
type UserHandler struct {
	users    repository.Users
	records  repository.AuditRecords
	policy   *acl.Policy
	auditLog *audit.Logger
}

func NewUserHandler(users repository.Users, records repository.AuditRecords, policy *acl.Policy, auditLog *audit.Logger) *UserHandler {
	return &UserHandler{
		users:    users,
		records:  records,
		policy:   policy,
		auditLog: auditLog,
	}
}

// UpdateRole changes a user's role
func (h *UserHandler) UpdateRole(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, apperrors.CodeInvalid, "Invalid user ID")
		return
	}

	var req models.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectBody(c, h.auditLog, models.ActionUserRole, map[string]any{"target_user_id": targetID.String()}, err)
		return
	}

	user, err := h.updateRole(c, actor, targetID, req.Role)

	meta := map[string]any{
		"target_user_id": targetID.String(),
		"role":           string(req.Role),
		"outcome":        "success",
	}
	if err != nil {
		meta["outcome"] = "failure"
		meta["error"] = string(apperrors.CodeOf(err))
	}
	h.auditLog.Write(c.Request.Context(), models.ActionUserRole, actor.UserID, meta)

	if err != nil {
		respondError(c, h.auditLog, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) updateRole(c *gin.Context, actor models.Actor, targetID uuid.UUID, role acl.Role) (*models.User, error) {
	if !h.policy.Can(actor.Role, acl.ActionUserRoleUpdate) {
		return nil, apperrors.Forbidden("not allowed to change roles")
	}
	if !role.Valid() {
		return nil, apperrors.Invalid("unknown role")
	}

	user, err := h.users.UpdateRole(c.Request.Context(), targetID, role)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, apperrors.Internal(err)
	}
	return user, nil
}

// GetAudit pages through the audit trail. Internal error records are only
// shown to roles allowed to see them.
func (h *UserHandler) GetAudit(c *gin.Context) {
	actor := middleware.ActorFrom(c)
	if !h.policy.Can(actor.Role, acl.ActionAuditView) {
		respondError(c, h.auditLog, apperrors.Forbidden("not allowed to view the audit log"))
		return
	}

	var req models.ListAuditRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}

	p := models.NewPagination(req.Page, req.PageSize)
	filter := models.AuditFilter{
		Action: req.Action,
		Limit:  p.Limit(),
		Offset: p.Offset(),
	}
	if !h.policy.Can(actor.Role, acl.ActionAuditInternal) {
		filter.ExcludeActions = []string{models.ActionError}
	}

	records, total, err := h.records.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.auditLog, apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":     records,
		"total":     total,
		"page":      p.Page,
		"page_size": p.PageSize,
	})
}
