// Package ban maintains identity bans. Each (type, value) pair has at most
// one live entry; lifting or superseding an entry moves it into history
// instead of deleting it, so the full record of an identity survives any
// number of ban and unban cycles.
package ban

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/acl"
	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/HFI-UC/UtiOpia-sub001/internal/audit"
	"github.com/HFI-UC/UtiOpia-sub001/internal/metrics"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
)

type Registry struct {
	tx     repository.TxRunner
	bans   repository.Bans
	policy *acl.Policy
	audit  *audit.Logger
	now    func() time.Time
}

func NewRegistry(tx repository.TxRunner, bans repository.Bans, policy *acl.Policy, auditLog *audit.Logger) *Registry {
	return &Registry{
		tx:     tx,
		bans:   bans,
		policy: policy,
		audit:  auditLog,
		now:    time.Now,
	}
}

// IsBanned reports whether the identity has a live, unexpired ban.
func (r *Registry) IsBanned(ctx context.Context, banType models.BanType, value string) (bool, error) {
	value = models.NormalizeBanValue(banType, value)
	if value == "" {
		return false, nil
	}
	entry, err := r.bans.FindActive(ctx, banType, value, false)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Internal(err)
	}
	return entry.Effective(r.now()), nil
}

// Create bans an identity. An identity that already has an effective ban is
// a Conflict; a live entry whose expiry has passed is retired first, in the
// same transaction.
func (r *Registry) Create(ctx context.Context, actor models.Actor, req models.CreateBanRequest) (*models.BanEntry, error) {
	entry, err := r.create(ctx, actor, req)

	meta := map[string]any{
		"type":   req.Type,
		"value":  models.NormalizeBanValue(req.Type, req.Value),
		"reason": req.Reason,
	}
	if req.ExpiresAt != nil {
		meta["expires_at"] = req.ExpiresAt.UTC()
	}
	if entry != nil {
		meta["ban_id"] = entry.ID
	}
	r.record(ctx, models.ActionBanCreate, actor, meta, err)

	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Registry) create(ctx context.Context, actor models.Actor, req models.CreateBanRequest) (*models.BanEntry, error) {
	if err := r.authorize(actor, acl.ActionBanManage); err != nil {
		return nil, err
	}
	now := r.now()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	entry := &models.BanEntry{
		Type:      req.Type,
		Value:     models.NormalizeBanValue(req.Type, req.Value),
		Reason:    strings.TrimSpace(req.Reason),
		CreatedBy: actor.UserID,
		CreatedAt: now,
		ExpiresAt: req.ExpiresAt,
	}

	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		live, err := r.bans.FindActive(ctx, entry.Type, entry.Value, true)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return err
		case live.Effective(now):
			return apperrors.Conflict("identity is already banned")
		default:
			if _, err := r.bans.Retire(ctx, live.ID, now); err != nil {
				return err
			}
		}
		return r.bans.Insert(ctx, entry)
	})
	if err != nil {
		return nil, translate(err, "identity is already banned")
	}
	return entry, nil
}

// Lift retires the live entry with the given id.
func (r *Registry) Lift(ctx context.Context, actor models.Actor, id int64) (*models.BanEntry, error) {
	var lifted *models.BanEntry
	err := r.authorize(actor, acl.ActionBanManage)
	if err == nil {
		err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
			entry, err := r.bans.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if !entry.Active {
				return apperrors.NotFound("no active ban with that id")
			}
			lifted, err = r.bans.Retire(ctx, id, r.now())
			return err
		})
		err = translate(err, "no active ban with that id")
		if apperrors.CodeOf(err) == apperrors.CodeConflict {
			err = apperrors.NotFound("no active ban with that id")
		}
	}

	meta := map[string]any{"ban_id": id}
	if lifted != nil {
		meta["type"] = lifted.Type
		meta["value"] = lifted.Value
	}
	r.record(ctx, models.ActionBanLift, actor, meta, err)

	if err != nil {
		return nil, err
	}
	return lifted, nil
}

// Update edits the reason or expiry of a live entry. An entry whose expiry
// has already passed counts as lifted and cannot be edited.
func (r *Registry) Update(ctx context.Context, actor models.Actor, id int64, req models.UpdateBanRequest) (*models.BanEntry, error) {
	var updated *models.BanEntry
	err := r.authorize(actor, acl.ActionBanManage)
	if err == nil {
		err = r.validateUpdate(req)
	}
	if err == nil {
		err = r.tx.RunInTx(ctx, func(ctx context.Context) error {
			now := r.now()
			entry, err := r.bans.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if !entry.Effective(now) {
				return apperrors.NotFound("no active ban with that id")
			}
			if req.Reason != nil {
				entry.Reason = strings.TrimSpace(*req.Reason)
			}
			switch {
			case req.ClearExpiry:
				entry.ExpiresAt = nil
			case req.ExpiresAt != nil:
				entry.ExpiresAt = req.ExpiresAt
			}
			entry.UpdatedAt = now
			if err := r.bans.Update(ctx, entry); err != nil {
				return err
			}
			updated = entry
			return nil
		})
		err = translate(err, "no active ban with that id")
		if apperrors.CodeOf(err) == apperrors.CodeConflict {
			err = apperrors.NotFound("no active ban with that id")
		}
	}

	meta := map[string]any{"ban_id": id, "clear_expiry": req.ClearExpiry}
	if req.Reason != nil {
		meta["reason"] = *req.Reason
	}
	if req.ExpiresAt != nil {
		meta["expires_at"] = req.ExpiresAt.UTC()
	}
	r.record(ctx, models.ActionBanUpdate, actor, meta, err)

	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Registry) validateUpdate(req models.UpdateBanRequest) error {
	if req.Reason == nil && req.ExpiresAt == nil && !req.ClearExpiry {
		return apperrors.Invalid("nothing to update")
	}
	if req.Reason != nil && len(*req.Reason) > 512 {
		return apperrors.Invalid("reason must be at most 512 characters")
	}
	if req.ClearExpiry && req.ExpiresAt != nil {
		return apperrors.Invalid("expires_at and clear_expiry are mutually exclusive")
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(r.now()) {
		return apperrors.Invalid("expires_at must be in the future")
	}
	return nil
}

// List returns effective bans, or every row when IncludeHistory is set.
func (r *Registry) List(ctx context.Context, actor models.Actor, req models.ListBansRequest) ([]models.BanView, int, error) {
	if err := r.authorize(actor, acl.ActionBanView); err != nil {
		return nil, 0, err
	}
	if req.Type != "" && !req.Type.Valid() {
		return nil, 0, apperrors.Invalid("type must be email or student_id")
	}

	p := models.NewPagination(req.Page, req.PageSize)
	filter := models.BanFilter{
		Type:           req.Type,
		Value:          strings.TrimSpace(req.Value),
		IncludeHistory: req.IncludeHistory,
		Limit:          p.Limit(),
		Offset:         p.Offset(),
	}
	if req.Type != "" {
		filter.Value = models.NormalizeBanValue(req.Type, req.Value)
	}

	now := r.now()
	entries, total, err := r.bans.List(ctx, filter, now)
	if err != nil {
		return nil, 0, apperrors.Internal(err)
	}
	return views(entries, now), total, nil
}

// History returns every entry recorded for an identity, newest first.
func (r *Registry) History(ctx context.Context, actor models.Actor, banType models.BanType, value string) ([]models.BanView, error) {
	if err := r.authorize(actor, acl.ActionBanView); err != nil {
		return nil, err
	}
	if !banType.Valid() {
		return nil, apperrors.Invalid("type must be email or student_id")
	}
	value = models.NormalizeBanValue(banType, value)
	if value == "" {
		return nil, apperrors.Invalid("value is required")
	}

	entries, err := r.bans.History(ctx, banType, value)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return views(entries, r.now()), nil
}

func views(entries []models.BanEntry, now time.Time) []models.BanView {
	out := make([]models.BanView, len(entries))
	for i, e := range entries {
		out[i] = models.BanView{BanEntry: e, Effective: e.Effective(now)}
	}
	return out
}

func (r *Registry) authorize(actor models.Actor, action acl.Action) error {
	if !r.policy.Can(actor.Role, action) {
		return apperrors.Forbidden("not allowed to " + string(action))
	}
	return nil
}

func (r *Registry) record(ctx context.Context, action string, actor models.Actor, meta map[string]any, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		meta["error"] = string(apperrors.CodeOf(err))
	}
	meta["outcome"] = outcome
	metrics.BanActionsTotal.WithLabelValues(action, outcome).Inc()
	r.audit.Write(ctx, action, actor.UserID, meta)
}

// translate maps storage sentinels onto domain errors. Errors that are
// already domain errors pass through unchanged.
func translate(err error, conflictMsg string) error {
	var appErr *apperrors.AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrConflict):
		return apperrors.Conflict(conflictMsg)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("no active ban with that id")
	default:
		return apperrors.Internal(err)
	}
}
