// Package identity decides who is submitting a message and whether they are
// allowed to.
package identity

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
	"github.com/google/uuid"
)

// BanChecker is the enforcement half of the ban registry.
type BanChecker interface {
	IsBanned(ctx context.Context, banType models.BanType, value string) (bool, error)
}

// Identity is the resolved author of a submission: exactly one of UserID
// and Anonymous is set.
type Identity struct {
	UserID    *uuid.UUID
	Email     string
	Anonymous *models.AnonymousIdentity
}

type Resolver struct {
	users repository.Users
	bans  BanChecker
}

func NewResolver(users repository.Users, bans BanChecker) *Resolver {
	return &Resolver{users: users, bans: bans}
}

// Resolve establishes the author of req. Signed-in callers post as their
// account unless they ask to post anonymously; either way the account e-mail
// is checked against the ban list. For anonymous posts both the e-mail and
// the student id are checked every time, so the response never reveals
// which of them matched.
func (r *Resolver) Resolve(ctx context.Context, actor models.Actor, req models.SubmitMessageRequest) (*Identity, error) {
	var account *models.User
	if actor.Authenticated() {
		user, err := r.users.GetByID(ctx, *actor.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Unauthorized("account no longer exists")
		}
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		account = user
	}

	var (
		email     string
		studentID string
		checks    []banCheck
	)
	if account != nil {
		checks = append(checks, banCheck{models.BanTypeEmail, models.NormalizeEmail(account.Email)})
	}
	if account == nil || req.Anonymous {
		email = models.NormalizeEmail(req.Email)
		studentID = models.NormalizeStudentID(req.StudentID)
		if err := models.ValidateAnonymous(email, studentID, req.Passphrase); err != nil {
			return nil, err
		}
		checks = append(checks,
			banCheck{models.BanTypeEmail, email},
			banCheck{models.BanTypeStudentID, studentID},
		)
	}

	if err := r.enforce(ctx, checks); err != nil {
		return nil, err
	}

	if account != nil && !req.Anonymous {
		return &Identity{UserID: &account.ID, Email: models.NormalizeEmail(account.Email)}, nil
	}
	return &Identity{
		Email: email,
		Anonymous: &models.AnonymousIdentity{
			Email:     email,
			StudentID: studentID,
		},
	}, nil
}

type banCheck struct {
	banType models.BanType
	value   string
}

// enforce runs every check before deciding, so a lookup failure or a match
// on one value never short-circuits the others.
func (r *Resolver) enforce(ctx context.Context, checks []banCheck) error {
	var (
		errs    []error
		matched []string
		seen    = map[banCheck]bool{}
	)
	for _, c := range checks {
		if c.value == "" || seen[c] {
			continue
		}
		seen[c] = true
		banned, err := r.bans.IsBanned(ctx, c.banType, c.value)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if banned && !slices.Contains(matched, string(c.banType)) {
			matched = append(matched, string(c.banType))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if len(matched) > 0 {
		return apperrors.Banned(strings.Join(matched, ","))
	}
	return nil
}
