package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
)

type BanRepository struct {
	db *DB
}

func (r *BanRepository) findActive(banType models.BanType, value string) (models.BanEntry, bool) {
	for _, b := range r.db.st.bans {
		if b.Active && b.Type == banType && b.Value == value {
			return b, true
		}
	}
	return models.BanEntry{}, false
}

func (r *BanRepository) FindActive(ctx context.Context, banType models.BanType, value string, _ bool) (*models.BanEntry, error) {
	defer r.db.lock(ctx)()
	b, ok := r.findActive(banType, value)
	if !ok {
		return nil, fmt.Errorf("active ban %s=%s: %w", banType, value, repository.ErrNotFound)
	}
	return &b, nil
}

func (r *BanRepository) GetByID(ctx context.Context, id int64) (*models.BanEntry, error) {
	defer r.db.lock(ctx)()
	b, ok := r.db.st.bans[id]
	if !ok {
		return nil, fmt.Errorf("ban %d: %w", id, repository.ErrNotFound)
	}
	return &b, nil
}

// Insert enforces the same (type, value, active, slot) uniqueness as the
// PostgreSQL constraint.
func (r *BanRepository) Insert(ctx context.Context, ban *models.BanEntry) error {
	defer r.db.lock(ctx)()
	if _, ok := r.findActive(ban.Type, ban.Value); ok {
		return fmt.Errorf("ban %s=%s already active: %w", ban.Type, ban.Value, repository.ErrConflict)
	}
	r.db.st.nextBanID++
	ban.ID = r.db.st.nextBanID
	ban.Active = true
	ban.Slot = models.LiveSlot
	ban.UpdatedAt = ban.CreatedAt
	r.db.st.bans[ban.ID] = *ban
	return nil
}

func (r *BanRepository) Retire(ctx context.Context, id int64, at time.Time) (*models.BanEntry, error) {
	defer r.db.lock(ctx)()
	b, ok := r.db.st.bans[id]
	if !ok || !b.Active {
		return nil, fmt.Errorf("ban %d is not active: %w", id, repository.ErrConflict)
	}
	b.Retire(at)
	r.db.st.bans[id] = b
	return &b, nil
}

func (r *BanRepository) Update(ctx context.Context, ban *models.BanEntry) error {
	defer r.db.lock(ctx)()
	b, ok := r.db.st.bans[ban.ID]
	if !ok || !b.Active {
		return fmt.Errorf("ban %d is not active: %w", ban.ID, repository.ErrConflict)
	}
	b.Reason = ban.Reason
	b.ExpiresAt = ban.ExpiresAt
	b.UpdatedAt = ban.UpdatedAt
	r.db.st.bans[ban.ID] = b
	return nil
}

func (r *BanRepository) List(ctx context.Context, filter models.BanFilter, now time.Time) ([]models.BanEntry, int, error) {
	defer r.db.lock(ctx)()
	var matched []models.BanEntry
	for _, b := range r.db.st.bans {
		if filter.Type != "" && b.Type != filter.Type {
			continue
		}
		if filter.Value != "" && b.Value != filter.Value {
			continue
		}
		if !filter.IncludeHistory && !b.Effective(now) {
			continue
		}
		matched = append(matched, b)
	}
	sortBans(matched)
	return page(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (r *BanRepository) History(ctx context.Context, banType models.BanType, value string) ([]models.BanEntry, error) {
	defer r.db.lock(ctx)()
	history := []models.BanEntry{}
	for _, b := range r.db.st.bans {
		if b.Type == banType && b.Value == value {
			history = append(history, b)
		}
	}
	sortBans(history)
	return history, nil
}

func sortBans(bans []models.BanEntry) {
	sort.Slice(bans, func(i, j int) bool {
		if !bans[i].CreatedAt.Equal(bans[j].CreatedAt) {
			return bans[i].CreatedAt.After(bans[j].CreatedAt)
		}
		return bans[i].ID > bans[j].ID
	})
}
