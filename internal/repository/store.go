package repository

import (
	"context"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/acl"
	"github.com/HFI-UC/UtiOpia-sub001/internal/database"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/google/uuid"
)

// TxRunner runs fn atomically. Repository calls made with the ctx handed to
// fn join the transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Users interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role acl.Role) (*models.User, error)
	EnsureUser(ctx context.Context, user *models.User) (*models.User, error)
}

type Messages interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Message, error)
	UpdateReview(ctx context.Context, message *models.Message) error
	UpdateContent(ctx context.Context, id uuid.UUID, content string, at time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
	ListPublic(ctx context.Context, limit, offset int, snapshot int64) ([]models.Message, int, int64, error)
	ListByStatus(ctx context.Context, status models.MessageStatus, limit, offset int) ([]models.Message, int, error)
}

type Bans interface {
	FindActive(ctx context.Context, banType models.BanType, value string, forUpdate bool) (*models.BanEntry, error)
	GetByID(ctx context.Context, id int64) (*models.BanEntry, error)
	Insert(ctx context.Context, ban *models.BanEntry) error
	Retire(ctx context.Context, id int64, at time.Time) (*models.BanEntry, error)
	Update(ctx context.Context, ban *models.BanEntry) error
	List(ctx context.Context, filter models.BanFilter, now time.Time) ([]models.BanEntry, int, error)
	History(ctx context.Context, banType models.BanType, value string) ([]models.BanEntry, error)
}

type AuditRecords interface {
	Append(ctx context.Context, record *models.AuditRecord) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, int, error)
}

// Store bundles the repositories behind one transaction boundary.
type Store struct {
	Tx       TxRunner
	Users    Users
	Messages Messages
	Bans     Bans
	Audit    AuditRecords
}

// NewPostgresStore wires the PostgreSQL repositories over db.
func NewPostgresStore(db *database.DB) *Store {
	return &Store{
		Tx:       db,
		Users:    NewUserRepository(db),
		Messages: NewMessageRepository(db),
		Bans:     NewBanRepository(db),
		Audit:    NewAuditRepository(db),
	}
}
