package handlers

import (
	"net/http"

	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/HFI-UC/UtiOpia-sub001/internal/audit"
	"github.com/HFI-UC/UtiOpia-sub001/internal/metrics"
	"github.com/HFI-UC/UtiOpia-sub001/internal/middleware"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/moderation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MessageHandler struct {
	engine   *moderation.Engine
	auditLog *audit.Logger
}

func NewMessageHandler(engine *moderation.Engine, auditLog *audit.Logger) *MessageHandler {
	return &MessageHandler{
		engine:   engine,
		auditLog: auditLog,
	}
}

// queueItem exposes the author identity to moderators so they can act on it.
type queueItem struct {
	models.Message
	AuthorEmail     string `json:"author_email,omitempty"`
	AuthorStudentID string `json:"author_student_id,omitempty"`
}

// SubmitMessage handles a new wall submission
func (h *MessageHandler) SubmitMessage(c *gin.Context) {
	var req models.SubmitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		rejectBody(c, h.auditLog, models.ActionMessageSubmit, map[string]any{"outcome": "invalid"}, err)
		return
	}

	msg, err := h.engine.Submit(c.Request.Context(), middleware.ActorFrom(c), req, c.ClientIP())
	if err != nil {
		respondError(c, h.auditLog, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// GetMessages lists the public wall
func (h *MessageHandler) GetMessages(c *gin.Context) {
	var req models.ListMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}

	page, err := h.engine.ListPublic(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.auditLog, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetMessage returns one message visible to the caller
func (h *MessageHandler) GetMessage(c *gin.Context) {
	id, ok := messageID(c)
	if !ok {
		return
	}

	msg, err := h.engine.Get(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		respondError(c, h.auditLog, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// ReviewMessage approves or rejects a pending message
func (h *MessageHandler) ReviewMessage(c *gin.Context) {
	id, ok := messageID(c)
	if !ok {
		return
	}

	var req models.ReviewMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectBody(c, h.auditLog, models.ActionMessageReview, map[string]any{"message_id": id.String()}, err)
		return
	}

	msg, err := h.engine.Decide(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		respondError(c, h.auditLog, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// EditMessage lets the author change a message still awaiting review
func (h *MessageHandler) EditMessage(c *gin.Context) {
	id, ok := messageID(c)
	if !ok {
		return
	}

	var req models.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectBody(c, h.auditLog, models.ActionMessageEdit, map[string]any{"message_id": id.String()}, err)
		return
	}

	msg, err := h.engine.Edit(c.Request.Context(), middleware.ActorFrom(c), id, req)
	if err != nil {
		respondError(c, h.auditLog, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// DeleteMessage soft-deletes a message. Anonymous authors prove ownership
// with their passphrase in the body.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	id, ok := messageID(c)
	if !ok {
		return
	}

	var req models.DeleteMessageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			rejectBody(c, h.auditLog, models.ActionMessageDelete, map[string]any{"message_id": id.String()}, err)
			return
		}
	}

	if err := h.engine.Delete(c.Request.Context(), middleware.ActorFrom(c), id, req.Passphrase); err != nil {
		respondError(c, h.auditLog, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetQueue lists messages for moderators by review status
func (h *MessageHandler) GetQueue(c *gin.Context) {
	var req models.ReviewQueueRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}

	page, err := h.engine.ListQueue(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		respondError(c, h.auditLog, err)
		return
	}

	items := make([]queueItem, len(page.Items))
	for i, msg := range page.Items {
		items[i] = queueItem{Message: msg}
		if msg.Anonymous != nil {
			items[i].AuthorEmail = msg.Anonymous.Email
			items[i].AuthorStudentID = msg.Anonymous.StudentID
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"items":     items,
		"total":     page.Total,
		"page":      page.Page,
		"page_size": page.PageSize,
	})
}

func messageID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, apperrors.CodeInvalid, "Invalid message ID")
		return uuid.Nil, false
	}
	return id, true
}
