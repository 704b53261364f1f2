package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
	"github.com/google/uuid"
)

type MessageRepository struct {
	db *DB
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	defer r.db.lock(ctx)()
	if _, ok := r.db.st.messages[message.ID]; ok {
		return fmt.Errorf("message %s: %w", message.ID, repository.ErrConflict)
	}
	r.db.st.messages[message.ID] = *message
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	defer r.db.lock(ctx)()
	m, ok := r.db.st.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, repository.ErrNotFound)
	}
	return &m, nil
}

// GetByIDForUpdate is GetByID; callers inside RunInTx already hold the
// store lock.
func (r *MessageRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return r.GetByID(ctx, id)
}

func (r *MessageRepository) UpdateReview(ctx context.Context, message *models.Message) error {
	defer r.db.lock(ctx)()
	cur, ok := r.db.st.messages[message.ID]
	if !ok || cur.Status != models.StatusPending {
		return fmt.Errorf("message %s is no longer pending: %w", message.ID, repository.ErrConflict)
	}
	cur.Status = message.Status
	cur.RejectReason = message.RejectReason
	cur.ReviewedBy = message.ReviewedBy
	cur.ReviewedAt = message.ReviewedAt
	if message.ReviewedAt != nil {
		cur.UpdatedAt = *message.ReviewedAt
	}
	cur.PublishSeq = nil
	if cur.Status == models.StatusApproved {
		r.db.st.publishSeq++
		seq := r.db.st.publishSeq
		cur.PublishSeq = &seq
		message.PublishSeq = &seq
	}
	r.db.st.messages[message.ID] = cur
	return nil
}

func (r *MessageRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string, at time.Time) error {
	defer r.db.lock(ctx)()
	cur, ok := r.db.st.messages[id]
	if !ok || cur.Status != models.StatusPending || cur.DeletedAt != nil {
		return fmt.Errorf("message %s is not editable: %w", id, repository.ErrConflict)
	}
	cur.Content = content
	cur.UpdatedAt = at
	r.db.st.messages[id] = cur
	return nil
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer r.db.lock(ctx)()
	cur, ok := r.db.st.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, repository.ErrNotFound)
	}
	if cur.DeletedAt == nil {
		cur.DeletedAt = &at
	}
	cur.UpdatedAt = at
	r.db.st.messages[id] = cur
	return nil
}

func (r *MessageRepository) ListPublic(ctx context.Context, limit, offset int, snapshot int64) ([]models.Message, int, int64, error) {
	defer r.db.lock(ctx)()
	if snapshot <= 0 {
		snapshot = r.db.st.publishSeq
	}
	var public []models.Message
	for _, m := range r.db.st.messages {
		if m.IsPublic() && m.PublishSeq != nil && *m.PublishSeq <= snapshot {
			public = append(public, m)
		}
	}
	sortMessages(public, true)
	return page(public, limit, offset), len(public), snapshot, nil
}

func (r *MessageRepository) ListByStatus(ctx context.Context, status models.MessageStatus, limit, offset int) ([]models.Message, int, error) {
	defer r.db.lock(ctx)()
	var matched []models.Message
	for _, m := range r.db.st.messages {
		if m.Status == status && m.DeletedAt == nil {
			matched = append(matched, m)
		}
	}
	sortMessages(matched, false)
	return page(matched, limit, offset), len(matched), nil
}
