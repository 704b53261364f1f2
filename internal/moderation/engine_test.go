package moderation

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/acl"
	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/HFI-UC/UtiOpia-sub001/internal/audit"
	"github.com/HFI-UC/UtiOpia-sub001/internal/ban"
	"github.com/HFI-UC/UtiOpia-sub001/internal/identity"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCaptcha struct {
	ok  bool
	err error
}

func (s stubCaptcha) Verify(context.Context, string, string) (bool, error) { return s.ok, s.err }

type notice struct{ to, reason string }

type stubNotifier struct {
	mu   sync.Mutex
	sent []notice
}

func (s *stubNotifier) NotifyRejected(_ context.Context, to, _, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, notice{to, reason})
	return nil
}

type stubWall struct {
	published []uuid.UUID
	removed   []uuid.UUID
}

func (w *stubWall) Published(_ context.Context, m models.Message) { w.published = append(w.published, m.ID) }
func (w *stubWall) Removed(_ context.Context, id uuid.UUID)       { w.removed = append(w.removed, id) }

type fixture struct {
	store    *repository.Store
	engine   *Engine
	bans     *ban.Registry
	notifier *stubNotifier
	wall     *stubWall
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	policy := acl.DefaultPolicy()
	auditLog := audit.NewLogger(store.Audit, audit.Config{})
	bans := ban.NewRegistry(store.Tx, store.Bans, policy, auditLog)

	f := &fixture{
		store:    store,
		bans:     bans,
		notifier: &stubNotifier{},
		wall:     &stubWall{},
	}
	f.engine = NewEngine(Deps{
		Tx:       store.Tx,
		Messages: store.Messages,
		Users:    store.Users,
		Resolver: identity.NewResolver(store.Users, bans),
		Captcha:  stubCaptcha{ok: true},
		Notifier: f.notifier,
		Wall:     f.wall,
		Policy:   policy,
		Audit:    auditLog,
	}, Config{MaxContentLength: 20})
	return f
}

func (f *fixture) addUser(t *testing.T, email string, role acl.Role) models.Actor {
	t.Helper()
	u := &models.User{ID: uuid.New(), Email: email, DisplayName: "User", Role: role, CreatedAt: time.Now()}
	require.NoError(t, f.store.Users.Create(context.Background(), u))
	return models.Actor{UserID: &u.ID, Email: email, Role: role}
}

func (f *fixture) audits(t *testing.T, action string) []models.AuditRecord {
	t.Helper()
	recs, _, err := f.store.Audit.List(context.Background(), models.AuditFilter{Action: action, Limit: 100})
	require.NoError(t, err)
	return recs
}

func anonymous(email, passphrase string) models.SubmitMessageRequest {
	return models.SubmitMessageRequest{
		Content:      "hello wall",
		Anonymous:    true,
		Email:        email,
		Passphrase:   passphrase,
		CaptchaToken: "tok",
	}
}

func TestBanLiftSubmitApproveScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mod := f.addUser(t, "mod@example.edu", acl.RoleModerator)

	entry, err := f.bans.Create(ctx, mod, models.CreateBanRequest{Type: models.BanTypeEmail, Value: "evader@x.edu"})
	require.NoError(t, err)

	_, err = f.engine.Submit(ctx, models.Actor{}, anonymous("evader@x.edu", "secret1"), "")
	require.ErrorIs(t, err, apperrors.ErrBanned)
	assert.Equal(t, "submission rejected", apperrors.PublicMessage(err))

	_, err = f.bans.Lift(ctx, mod, entry.ID)
	require.NoError(t, err)

	msg, err := f.engine.Submit(ctx, models.Actor{}, anonymous("evader@x.edu", "secret1"), "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, msg.Status)
	assert.Nil(t, msg.ReviewedBy)

	approved, err := f.engine.Decide(ctx, mod, msg.ID, models.ReviewMessageRequest{Decision: models.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, *mod.UserID, *approved.ReviewedBy)
	assert.NotNil(t, approved.ReviewedAt)

	page, err := f.engine.ListPublic(ctx, models.ListMessagesRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, msg.ID, page.Items[0].ID)
	assert.Equal(t, []uuid.UUID{msg.ID}, f.wall.published)

	_, err = f.engine.Decide(ctx, mod, msg.ID, models.ReviewMessageRequest{Decision: models.DecisionReject, Reason: "late"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	submits := f.audits(t, models.ActionMessageSubmit)
	require.Len(t, submits, 2)
	assert.Equal(t, "accepted", submits[0].Meta["outcome"])
	assert.Equal(t, "banned", submits[1].Meta["outcome"])
	assert.Equal(t, "email", submits[1].Meta["matched"])

	assert.Len(t, f.audits(t, models.ActionMessageApprove), 1)
	assert.Len(t, f.audits(t, models.ActionMessageReject), 1)
	assert.Len(t, f.audits(t, models.ActionBanCreate), 1)
	assert.Len(t, f.audits(t, models.ActionBanLift), 1)
}

func TestAuditNeverHoldsSecrets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Submit(ctx, models.Actor{}, anonymous("a@example.edu", "hunter2hunter2"), "")
	require.NoError(t, err)
	_, err = f.engine.Submit(ctx, models.Actor{}, anonymous("", "hunter2hunter2"), "")
	require.Error(t, err)

	sensitive := regexp.MustCompile(`(?i)password|passphrase|token|secret|authorization`)
	recs, _, err := f.store.Audit.List(ctx, models.AuditFilter{Limit: 100})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		for k, v := range rec.Meta {
			if sensitive.MatchString(k) {
				assert.Equal(t, audit.Redacted, v, "key %s", k)
			}
			assert.NotEqual(t, "hunter2hunter2", v)
		}
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	badURL := "ftp://example.edu/a.png"

	tests := []struct {
		name    string
		mutate  func(*models.SubmitMessageRequest)
		wantErr error
	}{
		{"Content too long", func(r *models.SubmitMessageRequest) { r.Content = "123456789012345678901" }, apperrors.ErrInvalid},
		{"Blank content", func(r *models.SubmitMessageRequest) { r.Content = "   " }, apperrors.ErrInvalid},
		{"Bad image url", func(r *models.SubmitMessageRequest) { r.ImageURL = &badURL }, apperrors.ErrInvalid},
		{"Short passphrase", func(r *models.SubmitMessageRequest) { r.Passphrase = "123" }, apperrors.ErrInvalid},
		{"No identifiers", func(r *models.SubmitMessageRequest) { r.Email = "" }, apperrors.ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := anonymous("a@example.edu", "secret1")
			tt.mutate(&req)
			_, err := f.engine.Submit(ctx, models.Actor{}, req, "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Len(t, f.audits(t, models.ActionMessageSubmit), len(tests))
}

func TestSubmitContentBoundCountsCharacters(t *testing.T) {
	f := newFixture(t)
	req := anonymous("a@example.edu", "secret1")
	req.Content = "墙墙墙墙墙墙墙墙墙墙墙墙墙墙墙墙墙墙墙墙"

	_, err := f.engine.Submit(context.Background(), models.Actor{}, req, "")
	assert.NoError(t, err)
}

func TestSubmitCaptcha(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.captcha = stubCaptcha{ok: false}
	_, err := f.engine.Submit(ctx, models.Actor{}, anonymous("a@example.edu", "secret1"), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	f.engine.captcha = stubCaptcha{err: errors.New("timeout")}
	_, err = f.engine.Submit(ctx, models.Actor{}, anonymous("a@example.edu", "secret1"), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	_, total, err := f.store.Messages.ListByStatus(ctx, models.StatusPending, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSubmitAsAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addUser(t, "member@example.edu", acl.RoleUser)

	msg, err := f.engine.Submit(ctx, user, models.SubmitMessageRequest{Content: "signed"}, "")
	require.NoError(t, err)
	require.NotNil(t, msg.UserID)
	assert.Equal(t, *user.UserID, *msg.UserID)
	assert.Nil(t, msg.Anonymous)

	mod := f.addUser(t, "mod@example.edu", acl.RoleModerator)
	_, err = f.bans.Create(ctx, mod, models.CreateBanRequest{Type: models.BanTypeEmail, Value: "member@example.edu"})
	require.NoError(t, err)

	_, err = f.engine.Submit(ctx, user, models.SubmitMessageRequest{Content: "again"}, "")
	assert.ErrorIs(t, err, apperrors.ErrBanned)
}

func TestDecide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mod := f.addUser(t, "mod@example.edu", acl.RoleModerator)
	user := f.addUser(t, "user@example.edu", acl.RoleUser)

	msg, err := f.engine.Submit(ctx, models.Actor{}, anonymous("author@example.edu", "secret1"), "")
	require.NoError(t, err)

	_, err = f.engine.Decide(ctx, user, msg.ID, models.ReviewMessageRequest{Decision: models.DecisionApprove})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.engine.Decide(ctx, mod, msg.ID, models.ReviewMessageRequest{Decision: models.DecisionReject, Reason: "  "})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	_, err = f.engine.Decide(ctx, mod, msg.ID, models.ReviewMessageRequest{Decision: "maybe"})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	_, err = f.engine.Decide(ctx, mod, uuid.New(), models.ReviewMessageRequest{Decision: models.DecisionApprove})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	rejected, err := f.engine.Decide(ctx, mod, msg.ID, models.ReviewMessageRequest{Decision: models.DecisionReject, Reason: "off topic"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectReason)
	assert.Equal(t, "off topic", *rejected.RejectReason)
	assert.Equal(t, []notice{{"author@example.edu", "off topic"}}, f.notifier.sent)
	assert.Empty(t, f.wall.published)

	page, err := f.engine.ListPublic(ctx, models.ListMessagesRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	assert.Len(t, f.audits(t, models.ActionMessageReview), 1)
	assert.Len(t, f.audits(t, models.ActionMessageReject), 2)
	assert.Len(t, f.audits(t, models.ActionMessageApprove), 2)
}

func TestConcurrentDecideOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg, err := f.engine.Submit(ctx, models.Actor{}, anonymous("a@example.edu", "secret1"), "")
	require.NoError(t, err)

	const reviewers = 6
	mods := make([]models.Actor, reviewers)
	for i := range mods {
		mods[i] = f.addUser(t, uuid.NewString()+"@example.edu", acl.RoleModerator)
	}

	errs := make([]error, reviewers)
	var wg sync.WaitGroup
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Decide(ctx, mods[i], msg.ID, models.ReviewMessageRequest{Decision: models.DecisionApprove})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	}
	assert.Equal(t, 1, ok)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mod := f.addUser(t, "mod@example.edu", acl.RoleModerator)
	owner := f.addUser(t, "owner@example.edu", acl.RoleUser)
	other := f.addUser(t, "other@example.edu", acl.RoleUser)

	anon, err := f.engine.Submit(ctx, models.Actor{}, anonymous("a@example.edu", "secret1"), "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.Delete(ctx, models.Actor{}, anon.ID, "wrong-pass"), apperrors.ErrForbidden)
	assert.ErrorIs(t, f.engine.Delete(ctx, other, anon.ID, ""), apperrors.ErrForbidden)
	require.NoError(t, f.engine.Delete(ctx, models.Actor{}, anon.ID, "secret1"))
	require.NoError(t, f.engine.Delete(ctx, models.Actor{}, anon.ID, "secret1"))

	signed, err := f.engine.Submit(ctx, owner, models.SubmitMessageRequest{Content: "mine"}, "")
	require.NoError(t, err)
	_, err = f.engine.Decide(ctx, mod, signed.ID, models.ReviewMessageRequest{Decision: models.DecisionApprove})
	require.NoError(t, err)
	require.NoError(t, f.engine.Delete(ctx, owner, signed.ID, ""))
	assert.Equal(t, []uuid.UUID{signed.ID}, f.wall.removed)

	page, err := f.engine.ListPublic(ctx, models.ListMessagesRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	assert.ErrorIs(t, f.engine.Delete(ctx, mod, uuid.New(), ""), apperrors.ErrNotFound)

	deletes := f.audits(t, models.ActionMessageDelete)
	require.Len(t, deletes, 6)
	assert.Equal(t, true, deletes[2].Meta["already_deleted"])
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mod := f.addUser(t, "mod@example.edu", acl.RoleModerator)

	msg, err := f.engine.Submit(ctx, models.Actor{}, anonymous("a@example.edu", "secret1"), "")
	require.NoError(t, err)

	_, err = f.engine.Edit(ctx, models.Actor{}, msg.ID, models.EditMessageRequest{Content: "changed", Passphrase: "nope123"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.engine.Edit(ctx, mod, msg.ID, models.EditMessageRequest{Content: "changed"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	edited, err := f.engine.Edit(ctx, models.Actor{}, msg.ID, models.EditMessageRequest{Content: "changed", Passphrase: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "changed", edited.Content)

	_, err = f.engine.Decide(ctx, mod, msg.ID, models.ReviewMessageRequest{Decision: models.DecisionApprove})
	require.NoError(t, err)

	_, err = f.engine.Edit(ctx, models.Actor{}, msg.ID, models.EditMessageRequest{Content: "again", Passphrase: "secret1"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestGetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mod := f.addUser(t, "mod@example.edu", acl.RoleModerator)
	owner := f.addUser(t, "owner@example.edu", acl.RoleUser)

	msg, err := f.engine.Submit(ctx, owner, models.SubmitMessageRequest{Content: "pending"}, "")
	require.NoError(t, err)

	_, err = f.engine.Get(ctx, models.Actor{}, msg.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.engine.Get(ctx, owner, msg.ID)
	assert.NoError(t, err)
	_, err = f.engine.Get(ctx, mod, msg.ID)
	assert.NoError(t, err)

	_, err = f.engine.Decide(ctx, mod, msg.ID, models.ReviewMessageRequest{Decision: models.DecisionApprove})
	require.NoError(t, err)
	_, err = f.engine.Get(ctx, models.Actor{}, msg.ID)
	assert.NoError(t, err)
}

func TestListPublicPaginationIsStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mod := f.addUser(t, "mod@example.edu", acl.RoleModerator)

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	approveAt := func(at time.Time) uuid.UUID {
		f.engine.now = func() time.Time { return at }
		msg, err := f.engine.Submit(ctx, models.Actor{}, anonymous("a@example.edu", "secret1"), "")
		require.NoError(t, err)
		_, err = f.engine.Decide(ctx, mod, msg.ID, models.ReviewMessageRequest{Decision: models.DecisionApprove})
		require.NoError(t, err)
		return msg.ID
	}

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		ids = append(ids, approveAt(base.Add(time.Duration(i)*time.Minute)))
	}

	first, err := f.engine.ListPublic(ctx, models.ListMessagesRequest{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, first.Total)
	assert.Equal(t, []uuid.UUID{ids[4], ids[3]}, pageIDs(first))

	approveAt(base.Add(time.Hour))

	asOf := first.AsOf
	second, err := f.engine.ListPublic(ctx, models.ListMessagesRequest{Page: 2, PageSize: 2, AsOf: &asOf})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ids[2], ids[1]}, pageIDs(second))
	assert.Equal(t, 5, second.Total)

	fresh, err := f.engine.ListPublic(ctx, models.ListMessagesRequest{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, fresh.Total)
}

func TestSubmitBanCannotBeSidestepped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mod := f.addUser(t, "mod@example.edu", acl.RoleModerator)
	member := f.addUser(t, "member@x.edu", acl.RoleUser)

	_, err := f.bans.Create(ctx, mod, models.CreateBanRequest{Type: models.BanTypeEmail, Value: "evader@x.edu"})
	require.NoError(t, err)
	_, err = f.bans.Create(ctx, mod, models.CreateBanRequest{Type: models.BanTypeEmail, Value: "Member@X.edu"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		actor models.Actor
		req   models.SubmitMessageRequest
	}{
		{name: "Display name form", req: anonymous("Evader <evader@x.edu>", "secret1")},
		{name: "Angle brackets", req: anonymous("<EVADER@x.edu>", "secret1")},
		{name: "Banned account posting anonymously", actor: member, req: anonymous("clean@x.edu", "secret1")},
		{name: "Banned account", actor: member, req: models.SubmitMessageRequest{Content: "hello", CaptchaToken: "tok"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := f.engine.Submit(ctx, tt.actor, tt.req, "")
			assert.Nil(t, msg)
			require.ErrorIs(t, err, apperrors.ErrBanned)
			assert.Equal(t, "submission rejected", apperrors.PublicMessage(err))
		})
	}

	page, err := f.engine.ListQueue(ctx, mod, models.ReviewQueueRequest{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestListPagesPastTheEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mod := f.addUser(t, "mod@example.edu", acl.RoleModerator)

	_, err := f.engine.Submit(ctx, models.Actor{}, anonymous("a@example.edu", "secret1"), "")
	require.NoError(t, err)

	for _, pg := range []int{math.MaxInt, math.MaxInt / 50, models.MaxPage + 1} {
		page, err := f.engine.ListPublic(ctx, models.ListMessagesRequest{Page: pg, PageSize: 50})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Equal(t, models.MaxPage, page.Page)

		queue, err := f.engine.ListQueue(ctx, mod, models.ReviewQueueRequest{Page: pg, PageSize: 50})
		require.NoError(t, err)
		assert.Empty(t, queue.Items)
		assert.Equal(t, 1, queue.Total)
	}
}

func TestListQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mod := f.addUser(t, "mod@example.edu", acl.RoleModerator)

	for i := 0; i < 3; i++ {
		_, err := f.engine.Submit(ctx, models.Actor{}, anonymous("a@example.edu", "secret1"), "")
		require.NoError(t, err)
	}

	_, err := f.engine.ListQueue(ctx, models.Actor{}, models.ReviewQueueRequest{})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	page, err := f.engine.ListQueue(ctx, mod, models.ReviewQueueRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	_, err = f.engine.ListQueue(ctx, mod, models.ReviewQueueRequest{Status: "archived"})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
}

func pageIDs(p *models.MessagePage) []uuid.UUID {
	ids := make([]uuid.UUID, len(p.Items))
	for i, m := range p.Items {
		ids[i] = m.ID
	}
	return ids
}
