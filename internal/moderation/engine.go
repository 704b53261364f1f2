// Package moderation runs the message lifecycle: submission, review,
// owner edits and deletion. Every state change is authorised against the
// ACL policy and written to the audit trail.
package moderation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/acl"
	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/HFI-UC/UtiOpia-sub001/internal/audit"
	"github.com/HFI-UC/UtiOpia-sub001/internal/auth"
	"github.com/HFI-UC/UtiOpia-sub001/internal/captcha"
	"github.com/HFI-UC/UtiOpia-sub001/internal/identity"
	"github.com/HFI-UC/UtiOpia-sub001/internal/metrics"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/notify"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WallPublisher announces changes to the public wall.
type WallPublisher interface {
	Published(ctx context.Context, msg models.Message)
	Removed(ctx context.Context, id uuid.UUID)
}

type noopWall struct{}

func (noopWall) Published(context.Context, models.Message) {}
func (noopWall) Removed(context.Context, uuid.UUID)        {}

type Config struct {
	MaxContentLength int
}

type Deps struct {
	Tx       repository.TxRunner
	Messages repository.Messages
	Users    repository.Users
	Resolver *identity.Resolver
	Captcha  captcha.Verifier
	Notifier notify.Notifier
	Wall     WallPublisher
	Policy   *acl.Policy
	Audit    *audit.Logger
}

type Engine struct {
	tx       repository.TxRunner
	messages repository.Messages
	users    repository.Users
	resolver *identity.Resolver
	captcha  captcha.Verifier
	notifier notify.Notifier
	wall     WallPublisher
	policy   *acl.Policy
	audit    *audit.Logger
	maxLen   int
	now      func() time.Time
}

func NewEngine(deps Deps, cfg Config) *Engine {
	e := &Engine{
		tx:       deps.Tx,
		messages: deps.Messages,
		users:    deps.Users,
		resolver: deps.Resolver,
		captcha:  deps.Captcha,
		notifier: deps.Notifier,
		wall:     deps.Wall,
		policy:   deps.Policy,
		audit:    deps.Audit,
		maxLen:   cfg.MaxContentLength,
		now:      time.Now,
	}
	if e.maxLen <= 0 {
		e.maxLen = models.DefaultMaxContentLength
	}
	if e.captcha == nil {
		e.captcha = captcha.Disabled{}
	}
	if e.notifier == nil {
		e.notifier = notify.Noop{}
	}
	if e.wall == nil {
		e.wall = noopWall{}
	}
	return e
}

// Submit accepts a new message into the review queue. The attempt is
// audited whatever the outcome.
func (e *Engine) Submit(ctx context.Context, actor models.Actor, req models.SubmitMessageRequest, remoteIP string) (*models.Message, error) {
	msg, err := e.submit(ctx, actor, req, remoteIP)

	meta := map[string]any{
		"anonymous": !actor.Authenticated() || req.Anonymous,
		"content":   req.Content,
		"has_image": req.ImageURL != nil && *req.ImageURL != "",
		"ip":        remoteIP,
	}
	if req.Email != "" {
		meta["email"] = models.NormalizeEmail(req.Email)
	}
	if req.StudentID != "" {
		meta["student_id"] = models.NormalizeStudentID(req.StudentID)
	}

	outcome := "accepted"
	if msg != nil {
		meta["message_id"] = msg.ID.String()
	}
	if err != nil {
		outcome = strings.ToLower(string(apperrors.CodeOf(err)))
		meta["error"] = string(apperrors.CodeOf(err))
		var banned *apperrors.BannedError
		if errors.As(err, &banned) {
			meta["matched"] = banned.MatchedType
		}
	}
	meta["outcome"] = outcome
	metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
	e.audit.Write(ctx, models.ActionMessageSubmit, actor.UserID, meta)

	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (e *Engine) submit(ctx context.Context, actor models.Actor, req models.SubmitMessageRequest, remoteIP string) (*models.Message, error) {
	if err := e.authorize(actor, acl.ActionMessageSubmit); err != nil {
		return nil, err
	}
	if err := models.ValidateContent(req.Content, e.maxLen); err != nil {
		return nil, err
	}
	var imageURL *string
	if req.ImageURL != nil && strings.TrimSpace(*req.ImageURL) != "" {
		u := strings.TrimSpace(*req.ImageURL)
		if err := models.ValidateImageURL(u); err != nil {
			return nil, err
		}
		imageURL = &u
	}

	ok, err := e.captcha.Verify(ctx, req.CaptchaToken, remoteIP)
	if err != nil {
		log.Warn().Err(err).Msg("captcha verification unavailable")
		return nil, apperrors.Wrap(apperrors.CodeInvalid, "captcha verification failed", err)
	}
	if !ok {
		return nil, apperrors.Invalid("captcha verification failed")
	}

	anonymous := !actor.Authenticated() || req.Anonymous
	var passphraseHash string
	if anonymous {
		if err := models.ValidatePassphrase(req.Passphrase); err != nil {
			return nil, err
		}
		passphraseHash, err = auth.HashPassphrase(req.Passphrase)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
	}

	now := e.now().UTC()
	msg := &models.Message{
		ID:        uuid.New(),
		Content:   req.Content,
		ImageURL:  imageURL,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		author, err := e.resolver.Resolve(ctx, actor, req)
		if err != nil {
			return err
		}
		msg.UserID = author.UserID
		if author.Anonymous != nil {
			anon := *author.Anonymous
			anon.PassphraseHash = passphraseHash
			msg.Anonymous = &anon
		}
		return e.messages.Create(ctx, msg)
	})
	if err != nil {
		return nil, storeError(err)
	}
	return msg, nil
}

// Decide moves a pending message to approved or rejected. Exactly one
// reviewer wins a race; the others get InvalidState.
func (e *Engine) Decide(ctx context.Context, reviewer models.Actor, id uuid.UUID, req models.ReviewMessageRequest) (*models.Message, error) {
	msg, err := e.decide(ctx, reviewer, id, req)

	action := models.ActionMessageReview
	switch req.Decision {
	case models.DecisionApprove:
		action = models.ActionMessageApprove
	case models.DecisionReject:
		action = models.ActionMessageReject
	}
	meta := map[string]any{
		"message_id": id.String(),
		"decision":   string(req.Decision),
	}
	if req.Reason != "" {
		meta["reason"] = req.Reason
	}
	if reviewer.UserID != nil {
		meta["reviewer_id"] = reviewer.UserID.String()
	}
	if err != nil {
		meta["error"] = string(apperrors.CodeOf(err))
		meta["outcome"] = "failure"
	} else {
		meta["outcome"] = "success"
		metrics.ReviewDecisionsTotal.WithLabelValues(string(msg.Status)).Inc()
	}
	e.audit.Write(ctx, action, reviewer.UserID, meta)

	if err != nil {
		return nil, err
	}

	switch msg.Status {
	case models.StatusApproved:
		e.wall.Published(ctx, *msg)
	case models.StatusRejected:
		if to := e.authorEmail(ctx, msg); to != "" {
			_ = e.notifier.NotifyRejected(ctx, to, msg.Content, *msg.RejectReason)
		}
	}
	return msg, nil
}

func (e *Engine) decide(ctx context.Context, reviewer models.Actor, id uuid.UUID, req models.ReviewMessageRequest) (*models.Message, error) {
	if err := e.authorize(reviewer, acl.ActionMessageReview); err != nil {
		return nil, err
	}
	if !reviewer.Authenticated() {
		return nil, apperrors.Unauthorized("reviewer must be signed in")
	}

	var msg *models.Message
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		msg, err = e.messages.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if msg.DeletedAt != nil {
			return apperrors.NotFound("message not found")
		}
		if err := msg.ApplyReview(req.Decision, req.Reason, *reviewer.UserID, e.now().UTC()); err != nil {
			return err
		}
		return e.messages.UpdateReview(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.InvalidState("message has already been reviewed")
		}
		return nil, storeError(err)
	}
	return msg, nil
}

// Delete soft-deletes a message. Moderators may delete anything; authors
// prove ownership with their account or, for anonymous posts, the
// passphrase chosen at submission. Deleting twice is not an error.
func (e *Engine) Delete(ctx context.Context, actor models.Actor, id uuid.UUID, passphrase string) error {
	var (
		via            string
		alreadyDeleted bool
		wasPublic      bool
	)
	err := func() error {
		msg, err := e.messages.GetByID(ctx, id)
		if err != nil {
			return storeError(err)
		}
		via, err = e.deleteGrant(actor, msg, passphrase)
		if err != nil {
			return err
		}
		alreadyDeleted = msg.DeletedAt != nil
		wasPublic = msg.IsPublic()
		return storeError(e.messages.SoftDelete(ctx, id, e.now().UTC()))
	}()

	meta := map[string]any{"message_id": id.String()}
	if err != nil {
		meta["error"] = string(apperrors.CodeOf(err))
		meta["outcome"] = "failure"
	} else {
		meta["outcome"] = "success"
		meta["via"] = via
		meta["already_deleted"] = alreadyDeleted
	}
	e.audit.Write(ctx, models.ActionMessageDelete, actor.UserID, meta)

	if err != nil {
		return err
	}
	if wasPublic {
		e.wall.Removed(ctx, id)
	}
	return nil
}

func (e *Engine) deleteGrant(actor models.Actor, msg *models.Message, passphrase string) (string, error) {
	if e.policy.Can(actor.Role, acl.ActionMessageDeleteAny) {
		return "moderator", nil
	}
	if e.ownsByAccount(actor, msg) {
		return "owner", nil
	}
	if e.ownsByPassphrase(msg, passphrase) {
		return "passphrase", nil
	}
	return "", apperrors.Forbidden("not allowed to delete this message")
}

// Edit replaces the content of the caller's own message while it is still
// pending review.
func (e *Engine) Edit(ctx context.Context, actor models.Actor, id uuid.UUID, req models.EditMessageRequest) (*models.Message, error) {
	msg, err := e.edit(ctx, actor, id, req)

	meta := map[string]any{"message_id": id.String(), "content": req.Content}
	if err != nil {
		meta["error"] = string(apperrors.CodeOf(err))
		meta["outcome"] = "failure"
	} else {
		meta["outcome"] = "success"
	}
	e.audit.Write(ctx, models.ActionMessageEdit, actor.UserID, meta)

	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (e *Engine) edit(ctx context.Context, actor models.Actor, id uuid.UUID, req models.EditMessageRequest) (*models.Message, error) {
	if err := models.ValidateContent(req.Content, e.maxLen); err != nil {
		return nil, err
	}
	msg, err := e.messages.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if !e.ownsByAccount(actor, msg) && !e.ownsByPassphrase(msg, req.Passphrase) {
		return nil, apperrors.Forbidden("only the author may edit this message")
	}
	if msg.DeletedAt != nil {
		return nil, apperrors.NotFound("message not found")
	}
	if msg.Status != models.StatusPending {
		return nil, apperrors.InvalidState("only pending messages can be edited")
	}

	now := e.now().UTC()
	if err := e.messages.UpdateContent(ctx, id, req.Content, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.InvalidState("only pending messages can be edited")
		}
		return nil, storeError(err)
	}
	msg.Content = req.Content
	msg.UpdatedAt = now
	return msg, nil
}

// Get returns a message. Messages that are not on the public wall are only
// visible to moderators and to their registered author; everyone else gets
// NotFound.
func (e *Engine) Get(ctx context.Context, viewer models.Actor, id uuid.UUID) (*models.Message, error) {
	msg, err := e.messages.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if msg.IsPublic() || e.policy.Can(viewer.Role, acl.ActionMessageViewQueue) {
		return msg, nil
	}
	if msg.DeletedAt == nil && e.ownsByAccount(viewer, msg) {
		return msg, nil
	}
	return nil, apperrors.NotFound("message not found")
}

// ListPublic pages through the wall. Passing back the AsOf of an earlier
// page pins the listing to the messages that were public at that point.
func (e *Engine) ListPublic(ctx context.Context, req models.ListMessagesRequest) (*models.MessagePage, error) {
	p := models.NewPagination(req.Page, req.PageSize)
	var snapshot int64
	if req.AsOf != nil {
		if *req.AsOf < 0 {
			return nil, apperrors.Invalid("as_of must not be negative")
		}
		snapshot = *req.AsOf
	}

	items, total, asOf, err := e.messages.ListPublic(ctx, p.Limit(), p.Offset(), snapshot)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &models.MessagePage{
		Items:    items,
		Total:    total,
		Page:     p.Page,
		PageSize: p.PageSize,
		AsOf:     asOf,
	}, nil
}

// ListQueue lists messages by review status, oldest first.
func (e *Engine) ListQueue(ctx context.Context, actor models.Actor, req models.ReviewQueueRequest) (*models.MessagePage, error) {
	if err := e.authorize(actor, acl.ActionMessageViewQueue); err != nil {
		return nil, err
	}
	status := req.Status
	if status == "" {
		status = models.StatusPending
	}
	if !status.Valid() {
		return nil, apperrors.Invalid("unknown status")
	}

	p := models.NewPagination(req.Page, req.PageSize)
	items, total, err := e.messages.ListByStatus(ctx, status, p.Limit(), p.Offset())
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &models.MessagePage{Items: items, Total: total, Page: p.Page, PageSize: p.PageSize}, nil
}

func (e *Engine) ownsByAccount(actor models.Actor, msg *models.Message) bool {
	return actor.UserID != nil && msg.UserID != nil && *actor.UserID == *msg.UserID
}

func (e *Engine) ownsByPassphrase(msg *models.Message, passphrase string) bool {
	return msg.Anonymous != nil && auth.VerifyPassphrase(msg.Anonymous.PassphraseHash, passphrase)
}

func (e *Engine) authorEmail(ctx context.Context, msg *models.Message) string {
	if email := msg.AuthorEmail(); email != "" {
		return email
	}
	if msg.UserID == nil || e.users == nil {
		return ""
	}
	user, err := e.users.GetByID(ctx, *msg.UserID)
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("failed to look up author for notice")
		return ""
	}
	return user.Email
}

func (e *Engine) authorize(actor models.Actor, action acl.Action) error {
	if !e.policy.Can(actor.Role, action) {
		return apperrors.Forbidden("not allowed to " + string(action))
	}
	return nil
}

// storeError maps storage sentinels onto domain errors.
func storeError(err error) error {
	var appErr *apperrors.AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("message not found")
	case errors.Is(err, repository.ErrConflict):
		return apperrors.Conflict("message changed concurrently")
	default:
		return apperrors.Internal(err)
	}
}
