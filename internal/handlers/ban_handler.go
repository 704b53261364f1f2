package handlers

import (
	"net/http"
	"strconv"

	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/HFI-UC/UtiOpia-sub001/internal/audit"
	"github.com/HFI-UC/UtiOpia-sub001/internal/ban"
	"github.com/HFI-UC/UtiOpia-sub001/internal/middleware"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/gin-gonic/gin"
)

type BanHandler struct {
	registry *ban.Registry
	auditLog *audit.Logger
}

func NewBanHandler(registry *ban.Registry, auditLog *audit.Logger) *BanHandler {
	return &BanHandler{
		registry: registry,
		auditLog: auditLog,
	}
}

// CreateBan bans an email or student id
func (h *BanHandler) CreateBan(c *gin.Context) {
	var req models.CreateBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectBody(c, h.auditLog, models.ActionBanCreate, nil, err)
		return
	}

	entry, err := h.registry.Create(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		respondError(c, h.auditLog, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// GetBans lists bans
func (h *BanHandler) GetBans(c *gin.Context) {
	var req models.ListBansRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}

	items, total, err := h.registry.List(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		respondError(c, h.auditLog, err)
		return
	}

	p := models.NewPagination(req.Page, req.PageSize)
	c.JSON(http.StatusOK, gin.H{
		"items":     items,
		"total":     total,
		"page":      p.Page,
		"page_size": p.PageSize,
	})
}

// GetBanHistory returns every ban recorded for one identity
func (h *BanHandler) GetBanHistory(c *gin.Context) {
	banType := models.BanType(c.Query("type"))
	items, err := h.registry.History(c.Request.Context(), middleware.ActorFrom(c), banType, c.Query("value"))
	if err != nil {
		respondError(c, h.auditLog, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// UpdateBan changes the reason or expiry of a live ban
func (h *BanHandler) UpdateBan(c *gin.Context) {
	id, ok := banID(c)
	if !ok {
		return
	}

	var req models.UpdateBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectBody(c, h.auditLog, models.ActionBanUpdate, map[string]any{"ban_id": id}, err)
		return
	}

	entry, err := h.registry.Update(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		respondError(c, h.auditLog, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// LiftBan retires a live ban into history
func (h *BanHandler) LiftBan(c *gin.Context) {
	id, ok := banID(c)
	if !ok {
		return
	}

	entry, err := h.registry.Lift(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		respondError(c, h.auditLog, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func banID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		ErrorResponse(c, http.StatusBadRequest, apperrors.CodeInvalid, "Invalid ban ID")
		return 0, false
	}
	return id, true
}
