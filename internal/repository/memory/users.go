package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/acl"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
	"github.com/google/uuid"
)

type UserRepository struct {
	db *DB
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	defer r.db.lock(ctx)()
	for _, u := range r.db.st.users {
		if u.Email == user.Email {
			return fmt.Errorf("email already registered: %w", repository.ErrConflict)
		}
	}
	r.db.st.users[user.ID] = *user
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	defer r.db.lock(ctx)()
	u, ok := r.db.st.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.db.lock(ctx)()
	for _, u := range r.db.st.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, repository.ErrNotFound)
}

func (r *UserRepository) UpdateRole(ctx context.Context, id uuid.UUID, role acl.Role) (*models.User, error) {
	defer r.db.lock(ctx)()
	u, ok := r.db.st.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	u.Role = role
	u.UpdatedAt = time.Now()
	r.db.st.users[id] = u
	return &u, nil
}

func (r *UserRepository) EnsureUser(ctx context.Context, user *models.User) (*models.User, error) {
	defer r.db.lock(ctx)()
	for _, u := range r.db.st.users {
		if u.Email == user.Email {
			u := u
			return &u, nil
		}
	}
	r.db.st.users[user.ID] = *user
	return user, nil
}
