package models

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/google/uuid"
)

type MessageStatus string

const (
	StatusPending  MessageStatus = "pending"
	StatusApproved MessageStatus = "approved"
	StatusRejected MessageStatus = "rejected"
)

func (s MessageStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// DefaultMaxContentLength is the content bound in characters when none is
// configured.
const DefaultMaxContentLength = 500

type Message struct {
	ID           uuid.UUID          `json:"id" db:"id"`
	UserID       *uuid.UUID         `json:"user_id,omitempty" db:"user_id"`
	Anonymous    *AnonymousIdentity `json:"-"`
	Content      string             `json:"content" db:"content"`
	ImageURL     *string            `json:"image_url,omitempty" db:"image_url"`
	Status       MessageStatus      `json:"status" db:"status"`
	RejectReason *string            `json:"reject_reason,omitempty" db:"reject_reason"`
	ReviewedBy   *uuid.UUID         `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt   *time.Time         `json:"reviewed_at,omitempty" db:"reviewed_at"`
	PublishSeq   *int64             `json:"-" db:"publish_seq"`
	DeletedAt    *time.Time         `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" db:"updated_at"`
}

// IsAnonymous reports whether the message was posted without an account.
func (m *Message) IsAnonymous() bool {
	return m.UserID == nil
}

// IsPublic reports whether the message may appear on the public wall.
func (m *Message) IsPublic() bool {
	return m.Status == StatusApproved && m.DeletedAt == nil
}

// AuthorEmail returns the address used to reach the author, if any.
func (m *Message) AuthorEmail() string {
	if m.Anonymous != nil {
		return m.Anonymous.Email
	}
	return ""
}

// ApplyReview moves a pending message to its terminal state. The reviewer
// fields and status are set together; a message that already left pending
// is never touched.
func (m *Message) ApplyReview(decision Decision, reason string, reviewer uuid.UUID, at time.Time) error {
	if m.Status != StatusPending {
		return apperrors.InvalidState("message has already been reviewed")
	}
	reason = strings.TrimSpace(reason)
	switch decision {
	case DecisionApprove:
		m.Status = StatusApproved
		m.RejectReason = nil
	case DecisionReject:
		if reason == "" {
			return apperrors.Invalid("a reason is required to reject a message")
		}
		m.Status = StatusRejected
		m.RejectReason = &reason
	default:
		return apperrors.Invalid("decision must be approve or reject")
	}
	m.ReviewedBy = &reviewer
	m.ReviewedAt = &at
	m.UpdatedAt = at
	return nil
}

// ValidateContent checks the content bound (in characters, not bytes) and
// rejects blank messages.
func ValidateContent(content string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxContentLength
	}
	if strings.TrimSpace(content) == "" {
		return apperrors.Invalid("content is required")
	}
	if utf8.RuneCountInString(content) > maxLen {
		return apperrors.Invalid("content exceeds the maximum length")
	}
	return nil
}

// ValidateImageURL accepts only absolute http(s) URLs; the wall stores the
// reference handed back by object storage and never the bytes.
func ValidateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return apperrors.Invalid("image_url must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperrors.Invalid("image_url must use http or https")
	}
	return nil
}

type SubmitMessageRequest struct {
	Content      string  `json:"content"`
	ImageURL     *string `json:"image_url,omitempty"`
	Anonymous    bool    `json:"anonymous"`
	Email        string  `json:"email,omitempty"`
	StudentID    string  `json:"student_id,omitempty"`
	Passphrase   string  `json:"passphrase,omitempty"`
	CaptchaToken string  `json:"captcha_token,omitempty"`
}

type ReviewMessageRequest struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

type EditMessageRequest struct {
	Content    string `json:"content"`
	Passphrase string `json:"passphrase,omitempty"`
}

type DeleteMessageRequest struct {
	Passphrase string `json:"passphrase,omitempty"`
}

type ListMessagesRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	AsOf     *int64 `form:"as_of"`
}

type ReviewQueueRequest struct {
	Status   MessageStatus `form:"status"`
	Page     int           `form:"page"`
	PageSize int           `form:"page_size"`
}

// MessagePage is one page of a listing. AsOf is the snapshot key clients pass
// back to keep later pages stable while new messages are approved.
type MessagePage struct {
	Items    []Message `json:"items"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	AsOf     int64     `json:"as_of"`
}
