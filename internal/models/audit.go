package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions written by the moderation core.
const (
	ActionMessageSubmit  = "message.submit"
	ActionMessageApprove = "message.approve"
	ActionMessageReject  = "message.reject"
	ActionMessageReview  = "message.review"
	ActionMessageDelete  = "message.delete"
	ActionMessageEdit    = "message.edit"
	ActionBanCreate      = "ban.create"
	ActionBanUpdate      = "ban.update"
	ActionBanLift        = "ban.lift"
	ActionUserRole       = "user.role.update"
	ActionError          = "error"
)

// AuditRecord is an append-only trail entry. Meta is redacted before it is
// handed to storage.
type AuditRecord struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	Action      string         `json:"action" db:"action"`
	ActorUserID *uuid.UUID     `json:"user_id" db:"actor_user_id"`
	Meta        map[string]any `json:"meta" db:"meta"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

type ListAuditRequest struct {
	Action   string `form:"action"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

type AuditFilter struct {
	Action         string
	ExcludeActions []string
	Limit          int
	Offset         int
}
