package models

import (
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/google/uuid"
)

type BanType string

const (
	BanTypeEmail     BanType = "email"
	BanTypeStudentID BanType = "student_id"
)

func (t BanType) Valid() bool {
	return t == BanTypeEmail || t == BanTypeStudentID
}

// LiveSlot is the slot held by the single live record of an identity.
// Retired rows take their own id as slot so history never collides.
const LiveSlot int64 = 0

// BanEntry is one row of an identity's ban history. At most one row per
// (Type, Value) is Active at any time.
type BanEntry struct {
	ID        int64      `json:"id" db:"id"`
	Type      BanType    `json:"type" db:"type"`
	Value     string     `json:"value" db:"value"`
	Active    bool       `json:"active" db:"active"`
	Slot      int64      `json:"slot" db:"slot"`
	Reason    string     `json:"reason" db:"reason"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}

// Expired reports whether the entry's expiry has passed at now.
func (b *BanEntry) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// Effective reports whether the entry blocks its identity at now. Expiry is
// evaluated lazily here; nothing sweeps expired rows.
func (b *BanEntry) Effective(now time.Time) bool {
	return b.Active && !b.Expired(now)
}

// Retire flips the entry into history.
func (b *BanEntry) Retire(at time.Time) {
	b.Active = false
	b.Slot = b.ID
	b.UpdatedAt = at
}

// NormalizeBanValue canonicalises a ban value for its type.
func NormalizeBanValue(t BanType, value string) string {
	if t == BanTypeEmail {
		return NormalizeEmail(value)
	}
	return NormalizeStudentID(value)
}

// BanView is a ban entry as presented to administrators, with expiry already
// applied.
type BanView struct {
	BanEntry
	Effective bool `json:"effective"`
}

type CreateBanRequest struct {
	Type      BanType    `json:"type"`
	Value     string     `json:"value"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (r *CreateBanRequest) Validate(now time.Time) error {
	if !r.Type.Valid() {
		return apperrors.Invalid("type must be email or student_id")
	}
	if NormalizeBanValue(r.Type, r.Value) == "" {
		return apperrors.Invalid("value is required")
	}
	if len(r.Reason) > 512 {
		return apperrors.Invalid("reason must be at most 512 characters")
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return apperrors.Invalid("expires_at must be in the future")
	}
	return nil
}

type UpdateBanRequest struct {
	Reason    *string    `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// ClearExpiry makes the ban permanent.
	ClearExpiry bool `json:"clear_expiry,omitempty"`
}

type ListBansRequest struct {
	Type           BanType `form:"type"`
	Value          string  `form:"value"`
	IncludeHistory bool    `form:"include_history"`
	Page           int     `form:"page"`
	PageSize       int     `form:"page_size"`
}

type BanFilter struct {
	Type           BanType
	Value          string
	IncludeHistory bool
	Limit          int
	Offset         int
}
